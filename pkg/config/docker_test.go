package config

import "testing"

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host   string
		docker bool
		want   string
	}{
		{"localhost", false, "localhost"},
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"::1", true, "host.docker.internal"},
		{"db.example.com", true, "db.example.com"},
		{"192.168.1.100", true, "192.168.1.100"},
	}

	for _, tt := range tests {
		if got := resolveHost(tt.host, tt.docker); got != tt.want {
			t.Errorf("resolveHost(%q, %v) = %q, want %q", tt.host, tt.docker, got, tt.want)
		}
	}
}

func TestResolveHostForDocker_LeavesRemoteHosts(t *testing.T) {
	if got := ResolveHostForDocker("mydb.example.com"); got != "mydb.example.com" {
		t.Errorf("ResolveHostForDocker() = %q, want unchanged host", got)
	}
}
