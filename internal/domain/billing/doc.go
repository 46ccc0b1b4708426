// Package billing models the organization's own SaaS subscription.
//
// Subscriptions arrive from three providers:
//   - Stripe Billing (web checkout)
//   - Polar (merchant of record checkout)
//   - RevenueCat (in-app purchases from the mobile apps)
//
// Each provider's webhook is translated into a State and applied to the
// Subscription keyed by (provider, external id). The organization's plan is
// derived from whichever subscription currently grants entitlement.
package billing
