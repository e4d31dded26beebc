package authsvc

import "testing"

func TestDefaultPasswordPolicy(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Abcdef1!", false},
		{"too short", "Ab1!", true},
		{"no digit", "Abcdefgh!", true},
		{"no lower", "ABCDEF1!", true},
		{"no upper", "abcdef1!", true},
		{"no special", "Abcdefg1", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := DefaultPasswordPolicy.Validate(tc.password)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tc.password, err, tc.wantErr)
			}
		})
	}
}
