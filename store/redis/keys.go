package redis

// Redis key naming conventions for draftgate data.
// All keys are prefixed with "draftgate:" to avoid collisions.

const keyPrefix = "draftgate:"

// ── Request keys ──

// requestKey returns the key for a request entity: draftgate:request:{id}
func requestKey(id string) string { return keyPrefix + "request:" + id }

// queueKey returns the Sorted Set key for a queue: draftgate:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// requestIDsKey is the Set tracking all request IDs for enumeration.
const requestIDsKey = keyPrefix + "request_ids"

// ── Job keys ──

// jobKey returns the key for a pipeline job entity: draftgate:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Artifact keys ──

// articleKey returns the key for a job's article: draftgate:article:{jobID}
func articleKey(jobID string) string { return keyPrefix + "article:" + jobID }

// reportKey returns the key for a job's quality report: draftgate:report:{jobID}
func reportKey(jobID string) string { return keyPrefix + "report:" + jobID }

// runlogKey returns the key for a job's execution log: draftgate:runlog:{jobID}
func runlogKey(jobID string) string { return keyPrefix + "runlog:" + jobID }

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entry: draftgate:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// scheduleNamesKey maps schedule names to IDs for duplicate detection.
const scheduleNamesKey = keyPrefix + "schedule_names"
