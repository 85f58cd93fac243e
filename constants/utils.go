package constants

const (
	EndpointJob         = "manatee/job"
	EndpointJobs        = "manatee/jobs"
	EndpointOutput      = "manatee/output"
	EndpointAttestation = "manatee/attestation"
)

// data clean room API paths used by the proxy
const (
	DcrJobSubmit      = "v1/job/submit"
	DcrJobQuery       = "v1/job/query"
	DcrJobOutput      = "v1/job/output/download"
	DcrJobAttestation = "v1/job/attestation/"
)

// ExtraEnvPrefix marks the proxy's environment variables forwarded to jobs.
const ExtraEnvPrefix = "MANATEE_EXTRA_ENV_"

const DOWNLOAD_CHUNK_SIZE = 1024 * 1024 * 3

const REDIS_ATTESTATION_PREFIX = "attestation:"

const PING_MSG = "ping"

const (
	DefaultPollIntervalSeconds     = 10
	DefaultPageChangeDelayMillis   = 1000
	DefaultProxyPort               = 8888
	DefaultRequestTimeoutSeconds   = 60
	DefaultAttestationCacheTTLDays = 7
)
