package domain

// DefaultKeyPrefix namespaces every key written to the cache store unless config overrides it.
const DefaultKeyPrefix = "jobfed:"
