package specification

import "gorm.io/gorm"

// Specification narrows an account query. Several compose by applying them
// in order to the same *gorm.DB.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
