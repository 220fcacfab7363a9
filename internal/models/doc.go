// Package models defines the core domain models for the referral network
// compensation engine.
//
// # Models
//
//   - ReferralEdge: one member row (user, sponsor, personal business) as read
//     from the member store
//   - Node: one member placed in a built referral tree
//   - Leg, BusinessSnapshot: result of aggregating business volume under a root
//   - RewardProgram, UserReward, RewardStatus: reward programs and per-user progress
//   - CommissionLevel, CommissionBreakdown: level rate table and computed payouts
//
// # Design Principles
//
// 1. **Ids, not pointers**: tree relationships are user id references, so a
// tree can never form a reference cycle in memory
// 2. **Immutable results**: snapshots and breakdowns are values returned by
// the calculator; callers own caching
// 3. **Explicit states**: reward status is an enum with a transition table,
// never a free-form string
package models
