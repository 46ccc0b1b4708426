// Package models holds the GORM persistence models. Domain types carry no
// ORM tags; each model converts with ToDomain and a FromDomain constructor.
//
//   - base.go: shared columns (ids, timestamps, version, org scope)
//   - json.go: JSON column type
//   - identity.go, organization.go: users, organizations, members, invitations, API keys, sequences
//   - crm.go, scheduling.go, sales.go, payment.go: business records
//   - billing.go, automation.go: subscriptions, automation rules and runs
//   - outbox.go: transactional outbox rows
package models
