package main

type sessionKey string

// namespaceSessionKey holds the anonymous ID that owns a visitor's conversation and scenarios.
const namespaceSessionKey = sessionKey("namespace")
