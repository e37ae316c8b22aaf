package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/trezcool/shule/core/library"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	testutil "github.com/trezcool/shule/tests"
)

func Test_studentApi_create(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	hero := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", []string{user.RoleStudent}, true)
	existing := testutil.CreateStudent(t, stdRepo, "Paul Kateki", "ADM001", "P4", "paul@test.cd")

	adminToken := getToken(t, admin)

	newStd := func(name, admissionNo string) []byte {
		return marchallObj(t, echoMap{"name": name, "admission_no": admissionNo, "class": "P5"})
	}

	tests := []httpTest{
		{name: "Auth required", body: newStd("A", "ADM100"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, hero), body: newStd("A", "ADM100"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "admission number required", token: adminToken, body: newStd("A", ""),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoMap{"admission_no": "this field is required"}),
		},
		{
			name: "duplicate admission number", token: adminToken, body: newStd("A", existing.AdmissionNo),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, echoMap{"admission_no": "a student with this admission number already exists"}),
		},
		{name: "create ok", token: adminToken, body: newStd("Grace Ilunga", "ADM002"), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/students", tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusCreated {
				var std student.Student
				if err := json.Unmarshal(rec.Body.Bytes(), &std); err != nil {
					t.Fatalf("unmarshalling response: %v", err)
				}
				if std.ID == "" || !std.IsActive {
					t.Errorf("unexpected student created: %+v", std)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studentApi_query(t *testing.T) {
	db.Reset()

	hero := testutil.CreateUser(t, usrRepo, "Hero", "heroo1", "hero@test.cd", "", []string{user.RoleStudent}, true)
	token := getToken(t, hero)

	// dummy repo returns students ordered by name
	grace := testutil.CreateStudent(t, stdRepo, "Grace Ilunga", "ADM002", "P5", "grace@test.cd")
	paul := testutil.CreateStudent(t, stdRepo, "Paul Kateki", "ADM001", "P4", "paul@test.cd")
	zawadi := testutil.CreateStudent(t, stdRepo, "Zawadi Mwamba", "ADM003", "P5", "")

	path := func(search, class string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if class != "" {
			v.Add("class", class)
		}
		return "/v1/students?" + v.Encode()
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Get all", path: "/v1/students", token: token, wantData: marchallList(t, grace, paul, zawadi)},
		{name: "search=ADM001", path: path("ADM001", ""), token: token, wantData: marchallList(t, paul)},
		{name: "search (unknown)", path: path("lol", ""), token: token, wantData: marchallList(t, []interface{}{}...)},
		{name: "class=P5", path: path("", "P5"), token: token, wantData: marchallList(t, grace, zawadi)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_studentApi_detail(t *testing.T) {
	db.Reset()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, admin)

	std := testutil.CreateStudent(t, stdRepo, "Paul Kateki", "ADM001", "P4", "paul@test.cd")

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+std.ID, adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantData: marchallObj(t, std)}, rec)
	})

	t.Run("retrieve unknown", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/lol", adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"})}, rec)
	})

	t.Run("update", func(t *testing.T) {
		body := marchallObj(t, echoMap{"class": "P5"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/students/"+std.ID, adminToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated student.Student
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if updated.Class != "P5" {
			t.Errorf("Class = %q; want %q", updated.Class, "P5")
		}
	})

	t.Run("deactivate", func(t *testing.T) {
		body := marchallObj(t, echoMap{"is_active": false})
		req, rec := newAuthRequest(http.MethodPut, "/v1/students/"+std.ID, adminToken, body)
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated student.Student
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if updated.IsActive {
			t.Error("expected student to be deactivated")
		}
	})

	t.Run("delete refused while books are out", func(t *testing.T) {
		book := testutil.CreateBook(t, libRepo, "Things Fall Apart", "Chinua Achebe", 2)
		if _, err := libSvc.Borrow(context.Background(), library.NewBorrow{BookID: book.ID, StudentID: std.ID, DueDate: time.Now().Add(24 * time.Hour)}); err != nil {
			t.Fatalf("Borrow() failed: %v", err)
		}

		r, rec := newAuthRequest(http.MethodDelete, "/v1/students/"+std.ID, adminToken)
		app.ServeHTTP(rec, r)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "student still holds borrowed library books"}),
		}, rec)
	})

	t.Run("delete", func(t *testing.T) {
		other := testutil.CreateStudent(t, stdRepo, "Grace Ilunga", "ADM002", "P5", "")
		r, rec := newAuthRequest(http.MethodDelete, "/v1/students/"+other.ID, adminToken)
		app.ServeHTTP(rec, r)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}
	})
}
