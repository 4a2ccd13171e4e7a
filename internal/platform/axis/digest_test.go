package axis

import (
	"strings"
	"testing"
)

// Reference vector from RFC 2617 section 3.5.
func TestDigestResponse_ReferenceVector(t *testing.T) {
	t.Parallel()
	got := digestResponse(
		"Mufasa", "testrealm@host.com", "Circle Of Life",
		"GET", "/dir/index.html",
		"dcd98b7102dd2f0e8b11d0f600bfb0c093",
		"00000001", "0a4f113b", "auth",
	)
	want := "6629fae49393a05397450978507c4ef1"
	if got != want {
		t.Errorf("digestResponse = %s, want %s", got, want)
	}
}

func TestDigestResponse_LegacyNoQop(t *testing.T) {
	t.Parallel()
	withQop := digestResponse("u", "r", "p", "GET", "/x", "n1", "00000001", "c1", "auth")
	without := digestResponse("u", "r", "p", "GET", "/x", "n1", "", "", "")
	if withQop == without {
		t.Error("Expected RFC 2069 form to differ from qop=auth form")
	}
}

func TestParseChallenge(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		header  string
		want    challenge
		wantErr bool
	}{
		{
			name:   "digest with quoted params",
			header: `Digest realm="AXIS_ACCC8E000000", nonce="abc123", qop="auth", opaque="xyz", algorithm=MD5`,
			want:   challenge{scheme: "Digest", realm: "AXIS_ACCC8E000000", nonce: "abc123", qop: "auth", opaque: "xyz", algorithm: "MD5"},
		},
		{
			name:   "qop list picks auth",
			header: `Digest realm="r", nonce="n", qop="auth,auth-int"`,
			want:   challenge{scheme: "Digest", realm: "r", nonce: "n", qop: "auth"},
		},
		{
			name:   "basic fallback",
			header: `Basic realm="device"`,
			want:   challenge{scheme: "Basic"},
		},
		{
			name:    "digest missing nonce",
			header:  `Digest realm="r"`,
			wantErr: true,
		},
		{
			name:    "empty header",
			header:  "",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseChallenge(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseChallenge failed: %v", err)
			}
			if *got != tc.want {
				t.Errorf("parseChallenge = %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func TestAuthorizationHeader(t *testing.T) {
	t.Parallel()
	ch := &challenge{scheme: "Digest", realm: "device", nonce: "n0nce", qop: "auth", opaque: "op"}
	header := ch.authorization("root", "secret", "POST", configPath)

	for _, want := range []string{
		`username="root"`, `realm="device"`, `nonce="n0nce"`,
		`uri="` + configPath + `"`, `qop=auth`, `nc=00000001`, `opaque="op"`,
	} {
		if !strings.Contains(header, want) {
			t.Errorf("Expected authorization header to contain %s, got %s", want, header)
		}
	}
	if strings.Contains(header, "secret") {
		t.Error("Authorization header must not carry the password")
	}
}
