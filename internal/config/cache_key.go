package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPaperKey returns the cache key for the redacted exam paper payload.
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamAnswerKey returns the cache key for an exam's answer key hash.
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptStartKey returns the cache key for an attempt's start timestamp.
func (r *CacheKeyStruct) AttemptStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:started_at", attemptID)
}

// GenerationQuotaKey returns the cache key for an author's daily
// generation counter. day is formatted YYYY-MM-DD.
func (r *CacheKeyStruct) GenerationQuotaKey(authorID int, day string) string {
	return fmt.Sprintf("author:%d:genquota:%s", authorID, day)
}

var CacheKey = NewCacheKeyStruct()
