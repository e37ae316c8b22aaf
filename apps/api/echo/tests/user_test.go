package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

func Test_userApi_login(t *testing.T) {
	db.Reset()

	usr := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "LetMeIn!", nil, true)
	deactivated := testutil.CreateUser(t, usrRepo, "N Dog", "ndog01", "ndog@test.cd", "LetMeIn!", nil, false)

	tests := []httpTest{
		{
			name: "empty body", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoMap{}),
			wantData: marchallObj(t, echoMap{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoMap{"username": "lol", "password": "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoMap{"username": usr.Username, "password": "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoMap{"username": deactivated.Username, "password": "LetMeIn!"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "login with username", wantCode: http.StatusOK,
			body: marchallObj(t, echoMap{"username": usr.Username, "password": "LetMeIn!"}),
		},
		{
			name: "login with email", wantCode: http.StatusOK,
			body: marchallObj(t, echoMap{"username": usr.Email, "password": "LetMeIn!"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK {
				var resp struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshalling response: %v", err)
				}
				if resp.Token == "" {
					t.Error("expected a token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

type echoMap map[string]interface{}

func Test_userApi_userQuery(t *testing.T) {
	db.Reset()

	path := func(search string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	// dummy repo returns users ordered by name
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", []string{user.RoleStudent}, true)
	king := testutil.CreateUser(t, usrRepo, "King", "user02", "king@test.cd", "", nil, true)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog01", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	principal := testutil.CreateUser(t, usrRepo, "Principal", "princp", "princip@test.cd", "", []string{user.RoleAdminPrincipal}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: getToken(t, hero), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Get all", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, admin, hero, king, naughty, principal, teacher),
		},
		{name: "search (unknown)", path: path("lol", nil), token: adminToken, wantData: empty},
		{name: "search=KIN", path: path("KIN", nil), token: adminToken, wantData: marchallList(t, king)},
		{name: "role (unknown)", path: path("", nil, "lol"), token: adminToken, wantData: empty},
		{name: "role=admin:", path: path("", nil, user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin, principal)},
		{
			name: "role=teacher:,student:", path: path("", nil, user.RoleTeacher, user.RoleStudent),
			token: adminToken, wantData: marchallList(t, hero, naughty, teacher),
		},
		{
			name: "is_active=true", path: path("", bPtr(true)),
			token: adminToken, wantData: marchallList(t, admin, hero, king, principal, teacher),
		},
		{name: "is_active=false", path: path("", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdminPrincipal}, true)
	student := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", []string{user.RoleStudent}, true)
	adminToken := getToken(t, admin)

	newUsr := func(name, uname, email string, roles ...string) []byte {
		return marchallObj(t, echoMap{
			"name": name, "username": uname, "email": email,
			"password": "LetMeIn!", "password_confirm": "LetMeIn!",
			"roles": roles,
		})
	}

	tests := []httpTest{
		{name: "Auth required", body: newUsr("U", "books1", "u@test.cd"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, student), body: newUsr("U", "books1", "u@test.cd"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "duplicate username", token: adminToken, body: newUsr("U", admin.Username, "u@test.cd"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoMap{"username": "a user with this username already exists"}),
		},
		{
			name: "duplicate email", token: adminToken, body: newUsr("U", "books1", admin.Email),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoMap{"email": "a user with this email already exists"}),
		},
		{
			name: "cannot grant a role above own max", token: adminToken, body: newUsr("U", "books1", "u@test.cd", user.RoleAdminOwner),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoMap{"roles": "not enough rights to set these roles"}),
		},
		{name: "create ok", token: adminToken, body: newUsr("Usher", "ushers", "usher@test.cd", user.RoleTeacher), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusCreated {
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("unmarshalling response: %v", err)
				}
				if usr.ID == "" || usr.Username != "ushers" {
					t.Errorf("unexpected user created: %+v", usr)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other1", "other@test.cd", "", []string{user.RoleStudent}, true)

	adminToken := getToken(t, admin)
	heroToken := getToken(t, hero)

	t.Run("own detail", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+hero.ID, heroToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantData: marchallObj(t, hero)}, rec)
	})

	t.Run("someone else's detail is hidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID, heroToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})

	t.Run("admin sees any detail", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+other.ID, adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantData: marchallObj(t, other)}, rec)
	})

	t.Run("non-admin cannot change roles", func(t *testing.T) {
		body := marchallObj(t, echoMap{"roles": []string{user.RoleTeacher}})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+hero.ID, heroToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("own name update", func(t *testing.T) {
		body := marchallObj(t, echoMap{"name": "Hero Mose"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+hero.ID, heroToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var usr user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if usr.Name != "Hero Mose" {
			t.Errorf("Name = %q; want %q", usr.Name, "Hero Mose")
		}
	})

	t.Run("admin cannot delete themselves", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+admin.ID, adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	t.Run("admin deletes a user", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+other.ID, adminToken)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusNoContent)
		}
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	db.Reset()

	usr := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", nil, true)
	token := getToken(t, usr)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", token)
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a fresh token")
	}
}

func Test_userApi_queryRoles(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", getToken(t, admin))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantData: marchallObj(t, user.Roles)}, rec)
}
