// Package qadir implements a Discord utility bot for a Star Citizen
// community.
//
// Key components of the package include:
//
//   - Qadir: The main struct that owns the bot's lifecycle.
//   - Discord: Handles the Discord gateway session and REST calls.
//   - Cache: Redis-backed caching, locks, cooldowns and session tracking.
//   - Store: Document persistence, backed by MongoDB or gorm (sqlite/postgres).
//   - API: A read-only admin API with health checks and Prometheus metrics.
//
// The bot supports these commands:
//
//   - /ping and /info: Utility commands.
//   - /propose: Submit a proposal, which opens a thread with a 24h poll.
//   - /event: Create loot tracking events, join them, log loot and finalise.
//   - /hangar create: Post a live Executive Hangar status embed.
//
// Application usage is recorded from presence updates, and the bot
// idles muted and deafened in configured voice channels.
package qadir
