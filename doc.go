// Package spotapi authenticates against Spotify's browser-only private API
// and keeps a realtime connection open for player-state updates.
//
// The package is organised around a small set of collaborating components:
// a Transport wrapping a browser-fingerprinted TLS client with a shared
// cookie jar, a credential broker (Client) that lazily resolves the rotating
// secrets the web player derives at runtime, a Login state machine that
// drives the password flow including CAPTCHA and embedded challenges, and a
// RealtimeSession plus EventManager pair that maintain the dealer websocket
// and dispatch push updates to subscribers.
//
// Nothing here retries whole flows on its own; errors are typed
// (RequestError, ProtocolError, AuthError, CaptchaError, SolverError) and
// surfaced to the caller. Unrecoverable configuration problems are wrapped
// in FatalError so the application boundary can decide to stop the world.
package spotapi
