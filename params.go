package authserver

import "net/url"

// RequestClass identifies one of the two request parameter sets handled by
// the server: end-user authorization and obtain-access-token.
type RequestClass string

const (
	// ClassEndUserAuthorization covers requests to the authorization endpoint
	ClassEndUserAuthorization RequestClass = "end_user_authorization"

	// ClassObtainAccessToken covers requests to the token endpoint
	ClassObtainAccessToken RequestClass = "obtain_access_token"
)

// Recognized response_type values. Only "code" is implemented; "token" is a
// recognized value the server answers with a not-implemented response.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// GrantTypeAuthorizationCode is the only grant type the token endpoint
// implements.
const GrantTypeAuthorizationCode = "authorization_code"

// paramSchema declares the mandatory fields and enumerations of a request
// class. Optional fields need no declaration; anything not mandatory and
// not enumerated passes through untouched.
type paramSchema struct {
	mandatory []string
	enums     map[string][]string
}

var schemas = map[RequestClass]paramSchema{
	ClassEndUserAuthorization: {
		mandatory: []string{"client_id", "response_type", "redirect_uri"},
		enums: map[string][]string{
			"response_type": {ResponseTypeCode, ResponseTypeToken},
		},
	},
	ClassObtainAccessToken: {
		mandatory: []string{"grant_type", "client_id", "code", "redirect_uri"},
	},
}

// ParamCheck is the result of validating a request against its class schema.
type ParamCheck struct {
	// MissingFields lists mandatory fields that are absent or empty
	MissingFields []string

	// InvalidEnums lists enumerated fields carrying an unrecognized value
	InvalidEnums []string
}

// OK reports whether the request satisfied the schema
func (c ParamCheck) OK() bool {
	return len(c.MissingFields) == 0 && len(c.InvalidEnums) == 0
}

// CheckParams validates params against the schema of the given request
// class. It is a pure predicate: no coercion, no cross-field checks, no
// side effects. Cross-field rules (like the exactly-one-secret rule at the
// token endpoint) belong to the endpoint logic.
func CheckParams(class RequestClass, params url.Values) ParamCheck {
	schema := schemas[class]

	var check ParamCheck
	for _, field := range schema.mandatory {
		if params.Get(field) == "" {
			check.MissingFields = append(check.MissingFields, field)
		}
	}

	for field, accepted := range schema.enums {
		value := params.Get(field)
		if value == "" {
			// Absence is a missing-field problem, not an enum problem
			continue
		}
		recognized := false
		for _, v := range accepted {
			if value == v {
				recognized = true
				break
			}
		}
		if !recognized {
			check.InvalidEnums = append(check.InvalidEnums, field)
		}
	}

	return check
}
