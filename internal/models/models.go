package models

import (
	"strings"
	"time"
)

// Category separates sports cards from trading card game cards
type Category string

const (
	CategorySport Category = "sport"
	CategoryTCG   Category = "tcg"
)

// PhotoSide identifies which photo of the card a value or region belongs to
type PhotoSide string

const (
	SideFront PhotoSide = "front"
	SideBack  PhotoSide = "back"
	SideTilt  PhotoSide = "tilt"
)

// PhotoSides lists the sides in capture order
var PhotoSides = []PhotoSide{SideFront, SideBack, SideTilt}

// Valid reports whether s is one of the known photo sides
func (s PhotoSide) Valid() bool {
	switch s {
	case SideFront, SideBack, SideTilt:
		return true
	}
	return false
}

// Field is the wire name of a CardDraft attribute
type Field string

const (
	FieldPlayerName   Field = "playerName"
	FieldCardName     Field = "cardName"
	FieldSport        Field = "sport"
	FieldGame         Field = "game"
	FieldManufacturer Field = "manufacturer"
	FieldYear         Field = "year"

	FieldTeamName     Field = "teamName"
	FieldSetName      Field = "setName"
	FieldInsertSet    Field = "insertSet"
	FieldParallel     Field = "parallel"
	FieldCardNumber   Field = "cardNumber"
	FieldNumbered     Field = "numbered"
	FieldAutograph    Field = "autograph"
	FieldMemorabilia  Field = "memorabilia"
	FieldGraded       Field = "graded"
	FieldGradeCompany Field = "gradeCompany"
	FieldGradeValue   Field = "gradeValue"
	FieldTCGSeries    Field = "tcgSeries"
	FieldRarity       Field = "rarity"
	FieldLanguage     Field = "language"
	FieldFoil         Field = "foil"
)

// TaxonomyFields are constrained to the approved option pool
var TaxonomyFields = []Field{FieldSetName, FieldInsertSet, FieldParallel}

// IsTaxonomy reports whether f is catalog-constrained
func (f Field) IsTaxonomy() bool {
	switch f {
	case FieldSetName, FieldInsertSet, FieldParallel:
		return true
	}
	return false
}

// IsRequired reports whether f lives in RequiredFields
func (f Field) IsRequired() bool {
	switch f {
	case FieldPlayerName, FieldCardName, FieldSport, FieldGame, FieldManufacturer, FieldYear:
		return true
	}
	return false
}

// IsScopeKey reports whether a change to f changes the option pool scope
func (f Field) IsScopeKey() bool {
	switch f {
	case FieldYear, FieldManufacturer, FieldSport, FieldGame, FieldSetName:
		return true
	}
	return false
}

// RequiredFields must be filled before a card leaves the required step
type RequiredFields struct {
	Category     Category `json:"category"`
	PlayerName   string   `json:"playerName,omitempty"`
	CardName     string   `json:"cardName,omitempty"`
	Sport        string   `json:"sport,omitempty"`
	Game         string   `json:"game,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Year         string   `json:"year,omitempty"`
}

// OptionalFields hold catalog detail beyond the identity of the card
type OptionalFields struct {
	TeamName     string `json:"teamName,omitempty"`
	ProductLine  string `json:"setName,omitempty"`
	InsertSet    string `json:"insertSet,omitempty"`
	Parallel     string `json:"parallel,omitempty"`
	CardNumber   string `json:"cardNumber,omitempty"`
	Numbered     string `json:"numbered,omitempty"`
	Autograph    bool   `json:"autograph,omitempty"`
	Memorabilia  bool   `json:"memorabilia,omitempty"`
	Graded       bool   `json:"graded,omitempty"`
	GradeCompany string `json:"gradeCompany,omitempty"`
	GradeValue   string `json:"gradeValue,omitempty"`
	TCGSeries    string `json:"tcgSeries,omitempty"`
	Rarity       string `json:"rarity,omitempty"`
	Language     string `json:"language,omitempty"`
	Foil         bool   `json:"foil,omitempty"`
}

// PhotoRef tracks one captured photo through upload
type PhotoRef struct {
	PhotoID    string    `json:"photoId,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Captured   bool      `json:"captured"`
	CapturedAt time.Time `json:"capturedAt,omitempty"`
	UploadErr  string    `json:"uploadError,omitempty"`
}

// Uploaded reports whether the external photo store assigned an id
func (p PhotoRef) Uploaded() bool {
	return p.PhotoID != ""
}

// Photos groups the three capture slots of a card
type Photos struct {
	Front PhotoRef `json:"front"`
	Back  PhotoRef `json:"back"`
	Tilt  PhotoRef `json:"tilt"`
}

// Get returns the photo slot for side
func (p *Photos) Get(side PhotoSide) *PhotoRef {
	switch side {
	case SideFront:
		return &p.Front
	case SideBack:
		return &p.Back
	case SideTilt:
		return &p.Tilt
	}
	return nil
}

// CardDraft is the in-progress record for one physical card
type CardDraft struct {
	ID        string         `json:"id"`
	AssetID   string         `json:"assetId,omitempty"`
	Required  RequiredFields `json:"required"`
	Optional  OptionalFields `json:"optional"`
	Photos    Photos         `json:"photos"`
	Step      string         `json:"step"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewCardDraft returns an empty sports card draft
func NewCardDraft(id string) *CardDraft {
	return &CardDraft{
		ID:        id,
		Required:  RequiredFields{Category: CategorySport},
		CreatedAt: time.Now(),
	}
}

// IdentityField returns the field naming the card for its category
func (d *CardDraft) IdentityField() Field {
	if d.Required.Category == CategoryTCG {
		return FieldCardName
	}
	return FieldPlayerName
}

// DisciplineField returns sport or game depending on category
func (d *CardDraft) DisciplineField() Field {
	if d.Required.Category == CategoryTCG {
		return FieldGame
	}
	return FieldSport
}

// Get returns the string form of a field; booleans render as "true" or ""
func (d *CardDraft) Get(f Field) string {
	r, o := &d.Required, &d.Optional
	switch f {
	case FieldPlayerName:
		return r.PlayerName
	case FieldCardName:
		return r.CardName
	case FieldSport:
		return r.Sport
	case FieldGame:
		return r.Game
	case FieldManufacturer:
		return r.Manufacturer
	case FieldYear:
		return r.Year
	case FieldTeamName:
		return o.TeamName
	case FieldSetName:
		return o.ProductLine
	case FieldInsertSet:
		return o.InsertSet
	case FieldParallel:
		return o.Parallel
	case FieldCardNumber:
		return o.CardNumber
	case FieldNumbered:
		return o.Numbered
	case FieldAutograph:
		return boolString(o.Autograph)
	case FieldMemorabilia:
		return boolString(o.Memorabilia)
	case FieldGraded:
		return boolString(o.Graded)
	case FieldGradeCompany:
		return o.GradeCompany
	case FieldGradeValue:
		return o.GradeValue
	case FieldTCGSeries:
		return o.TCGSeries
	case FieldRarity:
		return o.Rarity
	case FieldLanguage:
		return o.Language
	case FieldFoil:
		return boolString(o.Foil)
	}
	return ""
}

// Set assigns a field by name. Unknown fields report false.
func (d *CardDraft) Set(f Field, value string) bool {
	r, o := &d.Required, &d.Optional
	switch f {
	case FieldPlayerName:
		r.PlayerName = value
	case FieldCardName:
		r.CardName = value
	case FieldSport:
		r.Sport = value
	case FieldGame:
		r.Game = value
	case FieldManufacturer:
		r.Manufacturer = value
	case FieldYear:
		r.Year = value
	case FieldTeamName:
		o.TeamName = value
	case FieldSetName:
		o.ProductLine = value
	case FieldInsertSet:
		o.InsertSet = value
	case FieldParallel:
		o.Parallel = value
	case FieldCardNumber:
		o.CardNumber = value
	case FieldNumbered:
		o.Numbered = value
	case FieldAutograph:
		o.Autograph = parseBool(value)
	case FieldMemorabilia:
		o.Memorabilia = parseBool(value)
	case FieldGraded:
		o.Graded = parseBool(value)
	case FieldGradeCompany:
		o.GradeCompany = value
	case FieldGradeValue:
		o.GradeValue = value
	case FieldTCGSeries:
		o.TCGSeries = value
	case FieldRarity:
		o.Rarity = value
	case FieldLanguage:
		o.Language = value
	case FieldFoil:
		o.Foil = parseBool(value)
	default:
		return false
	}
	return true
}

// Clone returns a deep copy of the draft
func (d *CardDraft) Clone() *CardDraft {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1", "y":
		return true
	}
	return false
}
