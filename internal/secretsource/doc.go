// Package secretsource reads the plaintext secrets that get obscured into the
// key store, so they never have to appear on the command line.
//
// Supports five backends:
//   - File: a file readable by its owner only
//   - Env: an environment variable (read-only)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//   - Prompt: a no-echo terminal prompt, or a line of standard input when it is not a terminal
//   - Literal: a fixed value, for tests and scripting
//
// File and Keyring are also writable, which lets a decoded key be exported
// from the store into them.
package secretsource
