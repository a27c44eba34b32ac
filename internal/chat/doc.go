// Package chat is the interactive front end of a graychat session.
//
// A Loop reads lines typed by the user, encrypts them with the session codec
// and publishes them on the chat topic. Inbound messages decrypted by the
// session manager are rendered as
//
//	[15:04:05] text
//
// followed by a fresh prompt. All writes to the output go through one mutex
// so an inbound message never lands in the middle of the prompt.
//
// Typing "quit" (any case), closing input, or cancelling the context ends
// the loop. Encryption and publish failures are reported inline and the
// loop keeps going.
//
// Optional collaborators:
//   - Journal: ciphertexts of sent and received messages are appended, and
//     Replay shows the most recent ones at startup.
//   - Telemetry: message outcomes and state transitions are recorded.
//
// Prompter collects the startup answers (broker host, port, topic,
// passphrase), skipping any value already supplied by configuration.
package chat
