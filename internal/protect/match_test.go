package protect

import "testing"

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    bool
	}{
		{"double star spans segments", "a/b/c/d/file.go", "**/c/**", true},
		{"double star matches nothing", ".git/config", "**/.git/**", true},
		{"nested directory", "internal/auth/login.go", "**/auth/**", true},
		{"anchored prefix", "migrations/001_init.sql", "migrations/**", true},
		{"literal", "config/settings.yaml", "config/settings.yaml", true},
		{"wildcard segment", "internal/auth_handler.go", "internal/auth*", true},
		{"character class", "v2/api.go", "v[0-9]/*.go", true},
		{"different directory", "api/handler.go", "**/auth/**", false},
		{"similar name", "authz/x.go", "**/auth/**", false},
		{"trailing segments", "config/settings.yaml/x", "config/settings.yaml", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchGlob(tt.path, tt.pattern); got != tt.want {
				t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}
