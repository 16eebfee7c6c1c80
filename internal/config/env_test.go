package config

import "testing"

func TestLoadEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"LOG_FILE", "AUDIT_LOG_BODIES", "MAX_STDIO_CONNECTIONS", "MAX_BODY_BYTES",
		"RPC_RESPONSE_TIMEOUT_SECONDS", "AI_INJECTION_THRESHOLD", "ADMIN_PORT", "PATTERNS_DIR",
	} {
		t.Setenv(key, "")
		_ = key
	}

	env := LoadEnv()
	if !env.AuditLogBodies {
		t.Error("AuditLogBodies default should be true")
	}
	if env.MaxStdioConnections != defaultMaxStdioConnections {
		t.Errorf("MaxStdioConnections = %d, want %d", env.MaxStdioConnections, defaultMaxStdioConnections)
	}
	if env.MaxBodyBytes != defaultMaxBodyBytes {
		t.Errorf("MaxBodyBytes = %d, want %d", env.MaxBodyBytes, defaultMaxBodyBytes)
	}
	if env.RPCResponseTimeoutSeconds != defaultRPCResponseTimeoutSeconds {
		t.Errorf("RPCResponseTimeoutSeconds = %d, want %d", env.RPCResponseTimeoutSeconds, defaultRPCResponseTimeoutSeconds)
	}
	if env.AIInjectionThreshold != defaultAIInjectionThreshold {
		t.Errorf("AIInjectionThreshold = %v, want %v", env.AIInjectionThreshold, defaultAIInjectionThreshold)
	}
	if env.AdminPort != defaultAdminPort {
		t.Errorf("AdminPort = %d, want %d", env.AdminPort, defaultAdminPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AUDIT_LOG_BODIES", "false")
	t.Setenv("MAX_STDIO_CONNECTIONS", "25")
	t.Setenv("MAX_BODY_BYTES", "1024")
	t.Setenv("ADMIN_PORT", "9001")

	env := LoadEnv()
	if env.AuditLogBodies {
		t.Error("AuditLogBodies should be false")
	}
	if env.MaxStdioConnections != 25 {
		t.Errorf("MaxStdioConnections = %d, want 25", env.MaxStdioConnections)
	}
	if env.MaxBodyBytes != 1024 {
		t.Errorf("MaxBodyBytes = %d, want 1024", env.MaxBodyBytes)
	}
	if env.AdminPort != 9001 {
		t.Errorf("AdminPort = %d, want 9001", env.AdminPort)
	}
}

func TestLoadEnvIgnoresUnparseable(t *testing.T) {
	t.Setenv("MAX_BODY_BYTES", "not-a-number")
	env := LoadEnv()
	if env.MaxBodyBytes != defaultMaxBodyBytes {
		t.Errorf("MaxBodyBytes = %d, want default %d on unparseable input", env.MaxBodyBytes, defaultMaxBodyBytes)
	}
}
