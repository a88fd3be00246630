// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Each model carries ToDomain and FromDomain mappers; repositories only ever
// hand domain entities to callers. The PostgreSQL schema itself is owned by the
// SQL migrations in infrastructure/migration; AutoMigrate is only used by tests.
package models
