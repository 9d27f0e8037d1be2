package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AssignmentKey returns the cache key for an assignment payload (questions included).
func (r *CacheKeyStruct) AssignmentKey(assignmentID string) string {
	return fmt.Sprintf("assignment:%s", assignmentID)
}

// SubmissionKey returns the cache key for a user's submission record.
func (r *CacheKeyStruct) SubmissionKey(assignmentID string, userID int) string {
	return fmt.Sprintf("user:%d:assignment:%s:submission", userID, assignmentID)
}

// ResponsesKey returns the cache key for a user's in-progress responses.
func (r *CacheKeyStruct) ResponsesKey(assignmentID string, userID int) string {
	return fmt.Sprintf("user:%d:assignment:%s:responses", userID, assignmentID)
}

var CacheKey = NewCacheKeyStruct()
