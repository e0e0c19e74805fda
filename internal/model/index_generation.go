package model

// IndexGeneration is a single-row counter bumped in every transaction that changes index
// entries, so processes sharing the database can tell when their snapshot is stale.
type IndexGeneration struct {
	ID    uint  `gorm:"primaryKey;autoIncrement:false"`
	Value int64 `gorm:"not null;default:0"`
}
