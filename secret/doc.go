// Package secret resolves credentials referenced from configuration.
//
// Config values may use ${VAR} (the variable must be set) and secret
// references of the form secretref:<provider>:<ref>, either as the whole
// value or inline:
//
//	tmdb:
//	  api_key: secretref:env:TMDB_API_KEY
//	redis:
//	  url: redis://:secretref:file:redis-password@cache:6379/0
//
// Two providers are built in: env reads an environment variable and file
// reads a file (relative to a base directory such as /run/secrets).
package secret
