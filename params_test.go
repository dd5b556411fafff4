package authserver

import (
	"net/url"
	"testing"
)

func validEUAParams() url.Values {
	return url.Values{
		"client_id":     {"c1"},
		"response_type": {"code"},
		"redirect_uri":  {"https://c1/cb"},
	}
}

func validOATParams() url.Values {
	return url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {"c1"},
		"code":         {"g1|secret"},
		"redirect_uri": {"https://c1/cb"},
	}
}

func TestCheckParams_EndUserAuthorization(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(url.Values)
		wantOK      bool
		wantMissing int
		wantEnums   int
	}{
		{
			name:   "all mandatory present",
			mutate: func(url.Values) {},
			wantOK: true,
		},
		{
			name:   "optional state and scope accepted",
			mutate: func(v url.Values) { v.Set("state", "xyz"); v.Set("scope", "read") },
			wantOK: true,
		},
		{
			name:        "missing client_id",
			mutate:      func(v url.Values) { v.Del("client_id") },
			wantMissing: 1,
		},
		{
			name:        "empty client_id",
			mutate:      func(v url.Values) { v.Set("client_id", "") },
			wantMissing: 1,
		},
		{
			name:        "missing redirect_uri",
			mutate:      func(v url.Values) { v.Del("redirect_uri") },
			wantMissing: 1,
		},
		{
			name:        "missing everything",
			mutate:      func(v url.Values) { v.Del("client_id"); v.Del("response_type"); v.Del("redirect_uri") },
			wantMissing: 3,
		},
		{
			name:      "unrecognized response_type",
			mutate:    func(v url.Values) { v.Set("response_type", "code_and_token") },
			wantEnums: 1,
		},
		{
			name:   "token response_type is recognized",
			mutate: func(v url.Values) { v.Set("response_type", "token") },
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validEUAParams()
			tt.mutate(params)

			check := CheckParams(ClassEndUserAuthorization, params)
			if check.OK() != tt.wantOK {
				t.Errorf("OK() = %v, want %v (%+v)", check.OK(), tt.wantOK, check)
			}
			if len(check.MissingFields) != tt.wantMissing {
				t.Errorf("MissingFields = %v, want %d entries", check.MissingFields, tt.wantMissing)
			}
			if len(check.InvalidEnums) != tt.wantEnums {
				t.Errorf("InvalidEnums = %v, want %d entries", check.InvalidEnums, tt.wantEnums)
			}
		})
	}
}

func TestCheckParams_ObtainAccessToken(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(url.Values)
		wantOK      bool
		wantMissing int
	}{
		{
			name:   "all mandatory present",
			mutate: func(url.Values) {},
			wantOK: true,
		},
		{
			name:   "optional client_secret accepted",
			mutate: func(v url.Values) { v.Set("client_secret", "s1") },
			wantOK: true,
		},
		{
			name:        "missing grant_type",
			mutate:      func(v url.Values) { v.Del("grant_type") },
			wantMissing: 1,
		},
		{
			name:        "missing code",
			mutate:      func(v url.Values) { v.Del("code") },
			wantMissing: 1,
		},
		{
			name:   "grant_type value is not schema-checked",
			mutate: func(v url.Values) { v.Set("grant_type", "password") },
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validOATParams()
			tt.mutate(params)

			check := CheckParams(ClassObtainAccessToken, params)
			if check.OK() != tt.wantOK {
				t.Errorf("OK() = %v, want %v (%+v)", check.OK(), tt.wantOK, check)
			}
			if len(check.MissingFields) != tt.wantMissing {
				t.Errorf("MissingFields = %v, want %d entries", check.MissingFields, tt.wantMissing)
			}
		})
	}
}

func TestCheckParams_Pure(t *testing.T) {
	params := validEUAParams()
	CheckParams(ClassEndUserAuthorization, params)

	if len(params) != 3 {
		t.Errorf("CheckParams mutated its input: %v", params)
	}
}
