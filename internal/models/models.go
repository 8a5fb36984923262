package models

import (
	"fmt"
	"strings"
	"time"
)

// EnhancementType enumerates the supported handwriting enhancement kinds.
type EnhancementType string

const (
	// EnhancementTypeBeautify smooths and regularises handwritten strokes.
	EnhancementTypeBeautify EnhancementType = "beautify"
	// EnhancementTypeOCR recognises handwritten text.
	EnhancementTypeOCR EnhancementType = "ocr"
	// EnhancementTypeShape snaps freehand drawings to geometric shapes.
	EnhancementTypeShape EnhancementType = "shape"
	// EnhancementTypeFormula corrects handwritten mathematical formulas.
	EnhancementTypeFormula EnhancementType = "formula"
)

// ParseEnhancementType validates raw input against the recognised enhancement types.
func ParseEnhancementType(rawInput string) (EnhancementType, error) {
	switch EnhancementType(strings.ToLower(strings.TrimSpace(rawInput))) {
	case EnhancementTypeBeautify:
		return EnhancementTypeBeautify, nil
	case EnhancementTypeOCR:
		return EnhancementTypeOCR, nil
	case EnhancementTypeShape:
		return EnhancementTypeShape, nil
	case EnhancementTypeFormula:
		return EnhancementTypeFormula, nil
	default:
		return "", fmt.Errorf("%w: unknown enhancement type %q", ErrInvalidArgument, rawInput)
	}
}

// EnhancementStatus tracks the processing state of an enhancement attempt.
type EnhancementStatus string

const (
	EnhancementStatusPending    EnhancementStatus = "pending"
	EnhancementStatusProcessing EnhancementStatus = "processing"
	EnhancementStatusCompleted  EnhancementStatus = "completed"
	EnhancementStatusFailed     EnhancementStatus = "failed"
)

// Terminal reports whether no further transition is allowed from the status.
func (status EnhancementStatus) Terminal() bool {
	return status == EnhancementStatusCompleted || status == EnhancementStatusFailed
}

// SubscriptionTier labels a user's plan.
type SubscriptionTier string

const (
	SubscriptionTierFree SubscriptionTier = "free"
	SubscriptionTierPro  SubscriptionTier = "pro"
)

// User owns notebooks. Foreign keys cascade deletes down to enhancements.
type User struct {
	ID               uint64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email            string           `gorm:"column:email;size:255;not null;uniqueIndex:idx_users_email" json:"email"`
	Username         string           `gorm:"column:username;size:100;not null;uniqueIndex:idx_users_username" json:"username"`
	DisplayName      string           `gorm:"column:display_name;size:320;not null;default:''" json:"display_name"`
	IsActive         bool             `gorm:"column:is_active;not null;default:true;index:idx_users_is_active" json:"is_active"`
	SubscriptionTier SubscriptionTier `gorm:"column:subscription_tier;size:32;not null;default:'free';index:idx_users_subscription_tier" json:"subscription_tier"`
	CreatedAt        time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Notebook groups notes for a single user.
type Notebook struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID     uint64    `gorm:"column:user_id;not null;index:idx_notebooks_user_id;index:idx_notebooks_user_active,priority:1;index:idx_notebooks_user_favorite,priority:1,where:is_favorite = true" json:"user_id"`
	Name       string    `gorm:"column:name;size:200;not null" json:"name"`
	IsArchived bool      `gorm:"column:is_archived;not null;default:false;index:idx_notebooks_is_archived,where:is_archived = false;index:idx_notebooks_user_active,priority:2" json:"is_archived"`
	IsFavorite bool      `gorm:"column:is_favorite;not null;default:false;index:idx_notebooks_is_favorite,where:is_favorite = true;index:idx_notebooks_user_favorite,priority:2" json:"is_favorite"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Notebook) TableName() string {
	return "notebooks"
}

// Note stores handwritten content. OriginalStrokeData is written once at creation;
// the enhancement fields mirror the authoritative enhancement rows.
type Note struct {
	ID                 uint64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	NotebookID         uint64             `gorm:"column:notebook_id;not null;index:idx_notes_notebook_id;index:idx_notes_notebook_active,priority:1;index:idx_notes_notebook_enhanced,priority:1" json:"notebook_id"`
	Title              string             `gorm:"column:title;size:200;not null" json:"title"`
	Content            *string            `gorm:"column:content;type:text" json:"content,omitempty"`
	StrokeData         *string            `gorm:"column:stroke_data;type:text" json:"-"`
	OriginalStrokeData *string            `gorm:"column:original_stroke_data;type:text" json:"-"`
	ThumbnailURL       *string            `gorm:"column:thumbnail_url;size:500" json:"thumbnail_url,omitempty"`
	IsEnhanced         bool               `gorm:"column:is_enhanced;not null;default:false;index:idx_notes_notebook_enhanced,priority:2" json:"is_enhanced"`
	EnhancementStatus  *EnhancementStatus `gorm:"column:enhancement_status;size:16;index:idx_notes_enhancement_status" json:"enhancement_status,omitempty"`
	EnhancementVersion int64              `gorm:"column:enhancement_version;not null;default:0;index:idx_notes_enhancement_version" json:"enhancement_version"`
	IsArchived         bool               `gorm:"column:is_archived;not null;default:false;index:idx_notes_is_archived,where:is_archived = false;index:idx_notes_notebook_active,priority:2" json:"is_archived"`
	CreatedAt          time.Time          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"column:updated_at" json:"updated_at"`

	Notebook *Notebook `gorm:"foreignKey:NotebookID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Enhancement is one versioned attempt at enhancing a note.
//
// At most one row per note carries IsCurrent, enforced by the partial unique
// index idx_enhancements_note_current; (note_id, version) is unique.
type Enhancement struct {
	ID               uint64            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	NoteID           uint64            `gorm:"column:note_id;not null;index:idx_enhancements_note_id;uniqueIndex:idx_enhancements_note_version,priority:1;uniqueIndex:idx_enhancements_note_current,where:is_current = true" json:"note_id"`
	EnhancementType  EnhancementType   `gorm:"column:enhancement_type;size:16;not null;index:idx_enhancements_type" json:"enhancement_type"`
	Version          int64             `gorm:"column:version;not null;index:idx_enhancements_version;uniqueIndex:idx_enhancements_note_version,priority:2" json:"version"`
	IsCurrent        bool              `gorm:"column:is_current;not null;default:false;index:idx_enhancements_is_current,where:is_current = true" json:"is_current"`
	OriginalURL      string            `gorm:"column:original_url;size:500;not null;default:''" json:"original_url"`
	EnhancedURL      string            `gorm:"column:enhanced_url;size:500;not null;default:''" json:"enhanced_url"`
	ProcessingTimeMS *int64            `gorm:"column:processing_time_ms" json:"processing_time_ms,omitempty"`
	Status           EnhancementStatus `gorm:"column:status;size:16;not null;index:idx_enhancements_status,where:status <> 'completed';index:idx_enhancements_processing_queue,priority:1,where:status <> 'completed' AND status <> 'failed'" json:"status"`
	ModelVersion     *string           `gorm:"column:model_version;size:64" json:"model_version,omitempty"`
	Metadata         map[string]any    `gorm:"column:metadata;type:text;serializer:json" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"column:created_at;index:idx_enhancements_processing_queue,priority:2" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at" json:"updated_at"`

	Note *Note `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Enhancement) TableName() string {
	return "enhancements"
}

// All lists every persisted model in dependency order for schema migration.
func All() []any {
	return []any{&User{}, &Notebook{}, &Note{}, &Enhancement{}}
}
