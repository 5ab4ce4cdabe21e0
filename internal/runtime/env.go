package runtime

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/minifly/minifly/internal/model"
)

// BuildEnv composes the final container environment in the order
// specified by spec §4.1 "Environment composition": user env, then
// unconditional platform variables, then conditional S3-endpoint
// rewrites, then NODE_ENV/RAILS_ENV defaults, then secrets layered on
// top last.
func BuildEnv(userEnv map[string]string, machineID, appName string, secrets map[string]string) map[string]string {
	env := make(map[string]string, len(userEnv)+len(secrets)+8)
	for k, v := range userEnv {
		env[k] = v
	}

	env["FLY_APP_NAME"] = appName
	env["FLY_MACHINE_ID"] = machineID
	env["FLY_REGION"] = "local"
	env["FLY_PUBLIC_IP"] = "127.0.0.1"
	env["FLY_PRIVATE_IP"] = syntheticPrivateIPv4(machineID)
	env["FLY_CONSUL_URL"] = "http://localhost:8500"
	env["PRIMARY_REGION"] = "local"

	if _, hasTigris := userEnv["TIGRIS_ENDPOINT"]; hasTigris || hasKey(userEnv, "AWS_ENDPOINT_URL") {
		env["TIGRIS_ENDPOINT"] = "http://localhost:9000"
		env["AWS_ENDPOINT_URL"] = "http://localhost:9000"
		env["AWS_ENDPOINT_URL_S3"] = "http://localhost:9000"
	}

	if !hasKey(userEnv, "NODE_ENV") && !hasKey(userEnv, "RAILS_ENV") {
		env["NODE_ENV"] = "development"
	}

	for k, v := range secrets {
		env[k] = v
	}

	return env
}

func hasKey(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}

// syntheticPrivateIPv4 derives the "172.19.0.n" address of spec §4.1
// from the last three decimal digits of machine_id, mod 256, falling
// back to 2 when the id carries no digits.
func syntheticPrivateIPv4(machineID string) string {
	digits := ""
	for _, r := range machineID {
		if r >= '0' && r <= '9' {
			digits += string(r)
		}
	}
	n := 2
	if len(digits) > 0 {
		tail := digits
		if len(tail) > 3 {
			tail = tail[len(tail)-3:]
		}
		if v, err := strconv.Atoi(tail); err == nil {
			n = v % 256
		}
	}
	return fmt.Sprintf("172.19.0.%d", n)
}

// AppHashHex4 returns the 4-hex-digit hash of an app name used to build
// a Machine's synthetic IPv6 private_ip (spec §4.4, grounded on
// original_source/minifly-api/src/state.rs::generate_private_ip).
func AppHashHex4(appName string) string {
	sum := sha256.Sum256([]byte(appName))
	return fmt.Sprintf("%02x%02x", sum[0], sum[1])
}

// GuestResourceLimits translates a GuestConfig into Docker's cpu-share/
// cpu-quota/memory fields (spec §4.1).
type GuestResourceLimits struct {
	CPUShares  int64
	CPUPeriod  int64
	CPUQuota   int64
	MemoryByte int64
}

func ResourceLimitsFor(guest model.GuestConfig) GuestResourceLimits {
	limits := GuestResourceLimits{
		MemoryByte: int64(guest.MemoryMB) * 1024 * 1024,
	}
	switch guest.CPUKind {
	case "performance":
		limits.CPUPeriod = 100000
		limits.CPUQuota = int64(guest.CPUs) * 100000
	default: // "shared" and unset
		limits.CPUShares = int64(guest.CPUs) * 1024
	}
	return limits
}
