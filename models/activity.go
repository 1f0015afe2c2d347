package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// An Activity is the append-only envelope of a federated action. The
// type is an open string because remote servers send kinds this code
// has never heard of; unrecognised activities are archived as received.
type Activity struct {
	ID           string `gorm:"primarykey;size:255"`
	CreatedAt    time.Time
	ActorID      string         `gorm:"size:255;index;not null"`
	Actor        *Actor         `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	ActivityType string         `gorm:"size:64;index;not null"`
	Object       map[string]any `gorm:"serializer:json"`
	To           []string       `gorm:"column:to_recipients;serializer:json"`
	CC           []string       `gorm:"column:cc_recipients;serializer:json"`
	Published    time.Time
}

type Activities struct {
	db *gorm.DB
}

func NewActivities(db *gorm.DB) *Activities {
	return &Activities{db: db}
}

// Create persists an activity envelope. The activity id is the
// idempotency key: inserting an id that already exists changes nothing
// and is reported via the boolean, so callers can skip re-applying side
// effects for a redelivered activity.
func (a *Activities) Create(activity *Activity) (bool, error) {
	res := a.db.Clauses(clause.OnConflict{DoNothing: true}).Create(activity)
	return res.RowsAffected > 0, res.Error
}

// FindByID finds an activity by its id.
func (a *Activities) FindByID(id string) (*Activity, error) {
	var activity Activity
	return &activity, a.db.Take(&activity, "id = ?", id).Error
}

// CountByActor counts the activities published by an actor.
func (a *Activities) CountByActor(actorID string) (int64, error) {
	var count int64
	err := a.db.Model(&Activity{}).Where("actor_id = ?", actorID).Count(&count).Error
	return count, err
}

// ByActor returns an actor's activities, newest first.
func (a *Activities) ByActor(actorID string, limit, offset int) ([]*Activity, error) {
	var activities []*Activity
	err := a.db.
		Where("actor_id = ?", actorID).
		Order("published desc").
		Limit(limit).Offset(offset).
		Find(&activities).Error
	return activities, err
}

// PublicCountByActor counts the activities published by an actor that
// are addressed to the public audience.
func (a *Activities) PublicCountByActor(actorID, audience string) (int64, error) {
	var count int64
	err := a.db.Model(&Activity{}).
		Where("actor_id = ?", actorID).
		Where("to_recipients LIKE ? OR cc_recipients LIKE ?", "%"+audience+"%", "%"+audience+"%").
		Count(&count).Error
	return count, err
}

// PublicByActor returns an actor's publicly addressed activities,
// newest first.
func (a *Activities) PublicByActor(actorID, audience string, limit, offset int) ([]*Activity, error) {
	var activities []*Activity
	err := a.db.
		Where("actor_id = ?", actorID).
		Where("to_recipients LIKE ? OR cc_recipients LIKE ?", "%"+audience+"%", "%"+audience+"%").
		Order("published desc").
		Limit(limit).Offset(offset).
		Find(&activities).Error
	return activities, err
}
