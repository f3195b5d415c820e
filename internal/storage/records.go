package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/logger"
	"secretsanta/internal/models"
)

const (
	participantsKey = "participants"
	matchesKey      = "santaMatches"
)

// Records reads and writes one group's participant and match lists.
type Records struct {
	kv    KV
	group string
}

// NewRecords returns the record gateway for group on top of kv.
func NewRecords(kv KV, group string) *Records {
	return &Records{kv: kv, group: group}
}

func (r *Records) key(name string) string {
	return r.group + "/" + name
}

// SaveParticipants replaces the stored participant list.
func (r *Records) SaveParticipants(ctx context.Context, participants []models.Participant) error {
	if participants == nil {
		participants = []models.Participant{}
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	return r.kv.Put(ctx, r.key(participantsKey), data)
}

// LoadParticipants returns the stored participant list. A missing or
// unreadable record yields an empty list; only store failures are errors.
func (r *Records) LoadParticipants(ctx context.Context) ([]models.Participant, error) {
	var participants []models.Participant
	ok, err := r.load(ctx, participantsKey, &participants)
	if err != nil || !ok {
		return []models.Participant{}, err
	}
	return participants, nil
}

// SaveMatches replaces the stored match list. An empty list removes the record.
func (r *Records) SaveMatches(ctx context.Context, matches []models.Match) error {
	if len(matches) == 0 {
		return r.kv.Delete(ctx, r.key(matchesKey))
	}
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("encode matches: %w", err)
	}
	return r.kv.Put(ctx, r.key(matchesKey), data)
}

// LoadMatches returns the stored match list, empty when absent or corrupt.
func (r *Records) LoadMatches(ctx context.Context) ([]models.Match, error) {
	var matches []models.Match
	ok, err := r.load(ctx, matchesKey, &matches)
	if err != nil || !ok {
		return []models.Match{}, err
	}
	return matches, nil
}

func (r *Records) load(ctx context.Context, name string, v any) (bool, error) {
	data, found, err := r.kv.Get(ctx, r.key(name))
	if err != nil {
		return false, fmt.Errorf("load %s: %w", name, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warningf("Discarding corrupt %s record for group %s: %v", name, r.group, err)
		return false, nil
	}
	return true, nil
}
