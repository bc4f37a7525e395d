// Package dedupe keeps the bot from acting on the same Matrix event twice,
// whether it arrives again on a later sync or was sent before the bot started.
package dedupe
