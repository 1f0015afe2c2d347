package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// FollowStatus is the approval state of a follow edge.
type FollowStatus string

const (
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
	FollowRejected FollowStatus = "rejected"
)

func (FollowStatus) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return "enum('pending', 'accepted', 'rejected')"
	case "sqlite":
		return "TEXT"
	default:
		return ""
	}
}

// A Follow is a directed edge from a follower to the actor they follow.
// The (follower, following) pair is the identity of the edge; ID records
// the URI of the Follow activity that created it so later Accept and
// Undo activities can refer back to it.
type Follow struct {
	FollowerID  string       `gorm:"primarykey;size:255"`
	Follower    *Actor       `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	FollowingID string       `gorm:"primarykey;size:255"`
	Following   *Actor       `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	ID          string       `gorm:"size:255;index"`
	Status      FollowStatus `gorm:"not null;default:'pending'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// An Input drives the follow state machine.
type Input string

const (
	InputFollow Input = "Follow"
	InputAccept Input = "Accept"
	InputReject Input = "Reject"
	InputUndo   Input = "Undo"
)

// Transition returns the state following input from state, and whether
// the input causes a change. It is pure; the Follows repository applies
// the same rules transactionally.
//
// The empty status stands for no relationship. Undo from any state
// deletes the edge; a duplicate Follow is idempotent; Accept or Reject
// without a pending edge changes nothing.
func Transition(status FollowStatus, input Input) (FollowStatus, bool) {
	switch input {
	case InputFollow:
		if status == "" {
			return FollowPending, true
		}
		return status, false
	case InputAccept:
		if status == FollowPending {
			return FollowAccepted, true
		}
		return status, false
	case InputReject:
		if status == FollowPending {
			return FollowRejected, true
		}
		return status, false
	case InputUndo:
		if status == "" {
			return "", false
		}
		return "", true
	default:
		return status, false
	}
}

type Follows struct {
	db *gorm.DB
}

func NewFollows(db *gorm.DB) *Follows {
	return &Follows{db: db}
}

// Find returns the edge between follower and following, or
// gorm.ErrRecordNotFound.
func (f *Follows) Find(followerID, followingID string) (*Follow, error) {
	var follow Follow
	return &follow, f.db.Take(&follow, "follower_id = ? and following_id = ?", followerID, followingID).Error
}

// FindByActivityID returns the edge created by the Follow activity with
// the given id.
func (f *Follows) FindByActivityID(id string) (*Follow, error) {
	var follow Follow
	return &follow, f.db.Take(&follow, "id = ?", id).Error
}

// Follow creates a pending edge from follower to following, recording
// activityID as the originating Follow activity. Re-sending a Follow
// while an edge exists in any state is a no-op; the conflict clause
// makes duplicate delivery safe without a separate read.
func (f *Follows) Follow(activityID, followerID, followingID string) error {
	follow := &Follow{
		ID:          activityID,
		FollowerID:  followerID,
		FollowingID: followingID,
		Status:      FollowPending,
	}
	return f.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "follower_id"}, {Name: "following_id"}},
		DoNothing: true,
	}).Create(follow).Error
}

// Accept moves a pending edge to accepted. The status precondition in
// the WHERE clause serialises concurrent transitions on the same pair:
// of two racing Accepts exactly one updates a row, and both observe an
// accepted edge afterwards. Accepting a non-pending or missing edge is
// a no-op, reported via the boolean.
func (f *Follows) Accept(followerID, followingID string) (bool, error) {
	return f.transition(followerID, followingID, FollowAccepted)
}

// Reject moves a pending edge to rejected. Same contract as Accept.
func (f *Follows) Reject(followerID, followingID string) (bool, error) {
	return f.transition(followerID, followingID, FollowRejected)
}

func (f *Follows) transition(followerID, followingID string, status FollowStatus) (bool, error) {
	res := f.db.Model(&Follow{}).
		Where("follower_id = ? and following_id = ? and status = ?", followerID, followingID, FollowPending).
		Update("status", status)
	return res.RowsAffected > 0, res.Error
}

// Undo deletes the edge in whatever state it is in. Undoing a missing
// edge is a no-op.
func (f *Follows) Undo(followerID, followingID string) (bool, error) {
	res := f.db.Where("follower_id = ? and following_id = ?", followerID, followingID).Delete(&Follow{})
	return res.RowsAffected > 0, res.Error
}

// Status returns the current state of the edge, with the empty status
// standing for no relationship.
func (f *Follows) Status(followerID, followingID string) (FollowStatus, error) {
	follow, err := f.Find(followerID, followingID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return follow.Status, nil
}

// Followers returns the actors with an accepted follow of followingID.
func (f *Follows) Followers(followingID string) ([]*Actor, error) {
	var actors []*Actor
	err := f.db.
		Joins("JOIN follows ON follows.follower_id = actors.id").
		Where("follows.following_id = ? and follows.status = ?", followingID, FollowAccepted).
		Find(&actors).Error
	return actors, err
}

// Following returns the actors followerID has an accepted follow of.
func (f *Follows) Following(followerID string) ([]*Actor, error) {
	var actors []*Actor
	err := f.db.
		Joins("JOIN follows ON follows.following_id = actors.id").
		Where("follows.follower_id = ? and follows.status = ?", followerID, FollowAccepted).
		Find(&actors).Error
	return actors, err
}

// FollowersCount counts accepted followers of followingID.
func (f *Follows) FollowersCount(followingID string) (int64, error) {
	var count int64
	err := f.db.Model(&Follow{}).
		Where("following_id = ? and status = ?", followingID, FollowAccepted).
		Count(&count).Error
	return count, err
}

// FollowingCount counts accepted follows by followerID.
func (f *Follows) FollowingCount(followerID string) (int64, error) {
	var count int64
	err := f.db.Model(&Follow{}).
		Where("follower_id = ? and status = ?", followerID, FollowAccepted).
		Count(&count).Error
	return count, err
}
