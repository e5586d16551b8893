package provider

// The backend's login endpoint has been observed returning its user record and
// token in many different layouts. Normalization is an ordered table of
// predicate/extractor pairs; the first matching row wins, so adding support
// for a new layout is one row here plus a test case.

type shape struct {
	name string
	// match reports whether the payload is in this layout.
	match func(root map[string]any) bool
	// extract pulls the user object and token out of a matched payload. The
	// token may be empty only for rows that document it as optional; the
	// caller enforces the final token-presence check.
	extract func(root map[string]any) (user map[string]any, token string)
}

// loginShapes is evaluated in order. The original backend client also checked
// "user plus root token" under two spellings; those collapse into one row.
var loginShapes = []shape{
	{
		name: "user_embedded_token",
		match: func(root map[string]any) bool {
			user := objectField(root, "user")
			return user != nil && stringField(user, "token") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			user := objectField(root, "user")
			return user, stringField(user, "token")
		},
	},
	{
		name: "user_root_token",
		match: func(root map[string]any) bool {
			return objectField(root, "user") != nil && stringField(root, "token") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			return objectField(root, "user"), stringField(root, "token")
		},
	},
	{
		name: "user_root_access_token",
		match: func(root map[string]any) bool {
			return objectField(root, "user") != nil && stringField(root, "accessToken") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			return objectField(root, "user"), stringField(root, "accessToken")
		},
	},
	{
		name: "data_root_token",
		match: func(root map[string]any) bool {
			return objectField(root, "data") != nil && stringField(root, "token") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			return objectField(root, "data"), stringField(root, "token")
		},
	},
	{
		name: "data_root_access_token",
		match: func(root map[string]any) bool {
			return objectField(root, "data") != nil && stringField(root, "accessToken") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			return objectField(root, "data"), stringField(root, "accessToken")
		},
	},
	{
		name: "root_token",
		match: func(root map[string]any) bool {
			return stringField(root, "token") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			return root, stringField(root, "token")
		},
	},
	{
		name: "root_access_token",
		match: func(root map[string]any) bool {
			return stringField(root, "accessToken") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			return root, stringField(root, "accessToken")
		},
	},
	{
		// Whole payload is the user record; the token is optional at this
		// stage and the caller's final check decides.
		name: "root_id",
		match: func(root map[string]any) bool {
			return stringField(root, "_id") != "" || stringField(root, "id") != ""
		},
		extract: func(root map[string]any) (map[string]any, string) {
			token := stringField(root, "token")
			if token == "" {
				token = stringField(root, "accessToken")
			}
			return root, token
		},
	},
}

// normalize runs the shape table over a decoded login payload. The returned
// shape name feeds structured logging so a new backend variant can be
// diagnosed from logs alone.
func normalize(root map[string]any) (user map[string]any, token, shapeName string, ok bool) {
	for _, sh := range loginShapes {
		if sh.match(root) {
			user, token = sh.extract(root)
			return user, token, sh.name, true
		}
	}
	return nil, "", "", false
}

func objectField(m map[string]any, key string) map[string]any {
	obj, _ := m[key].(map[string]any)
	return obj
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// firstString returns the first non-empty string among the named fields,
// falling back to def.
func firstString(m map[string]any, def string, keys ...string) string {
	for _, key := range keys {
		if v := stringField(m, key); v != "" {
			return v
		}
	}
	return def
}
