package aws

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestResolveRegion(t *testing.T) {
	tests := []struct {
		name    string
		request string
		conn    string
		def     string
		want    string
	}{
		{"request wins", "eu-west-1", "us-west-2", "us-east-1", "eu-west-1"},
		{"connection fallback", "", "us-west-2", "us-east-1", "us-west-2"},
		{"default fallback", "", "", "us-east-1", "us-east-1"},
		{"all empty", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveRegion(tt.request, tt.conn, tt.def)
			if got != tt.want {
				t.Errorf("ResolveRegion(%q, %q, %q) = %q, want %q", tt.request, tt.conn, tt.def, got, tt.want)
			}
		})
	}
}

func TestRateLimiterSerializesPerService(t *testing.T) {
	rl := NewRateLimiter(100)
	rl.Wait("ec2")
	rl.Wait("ec2")
	rl.Wait("rds")
}

func TestNewClientFactoryWithRate(t *testing.T) {
	f := NewClientFactoryWithRate(zerolog.Nop(), 50)
	if f.rateLimiter.ratePerSec != 50 {
		t.Errorf("configured rate not applied: got %d", f.rateLimiter.ratePerSec)
	}
	if def := NewClientFactory(zerolog.Nop()); def.rateLimiter.ratePerSec != 10 {
		t.Errorf("default rate changed: got %d", def.rateLimiter.ratePerSec)
	}
}
