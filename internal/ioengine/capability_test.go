package ioengine

import "testing"

func TestParseKernelVersion(t *testing.T) {
	cases := []struct {
		release string
		wantErr bool
	}{
		{"6.8.0-40-generic", false},
		{"5.15.0", false},
		{"3.9.0", false},
		{"not-a-version", true},
	}

	for _, c := range cases {
		v, err := parseKernelVersion(c.release)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseKernelVersion(%q) = %v, want error", c.release, v)
			}

			continue
		}

		if err != nil {
			t.Errorf("parseKernelVersion(%q) unexpected error: %v", c.release, err)
		}
	}
}

func TestUnameString(t *testing.T) {
	var arr [65]byte

	copy(arr[:], "6.8.0\x00garbage")

	if got := unameString(arr); got != "6.8.0" {
		t.Fatalf("unameString = %q, want %q", got, "6.8.0")
	}
}

func TestUnameStringInt8(t *testing.T) {
	var arr [65]int8

	s := "5.10.1"
	for i := 0; i < len(s); i++ {
		arr[i] = int8(s[i])
	}

	if got := unameString(arr); got != s {
		t.Fatalf("unameString(int8) = %q, want %q", got, s)
	}
}
