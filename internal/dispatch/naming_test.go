package dispatch

import "testing"

func TestAuditEventName_TemplatesParameterizedRoutes(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"GET", "/v1/school/events", "API_GET_V1_SCHOOL_EVENTS"},
		{"GET", "/v1/school/events/evt-123", "API_GET_V1_SCHOOL_EVENTS_EVENTID"},
		{"GET", "/v1/school/events/evt-123/claimants", "API_GET_V1_SCHOOL_EVENTS_EVENTID_CLAIMANTS"},
		{"POST", "/api/events/evt-123/claim", "API_POST_API_EVENTS_EVENTID_CLAIM"},
		{"POST", "/v1/school/claims", "API_POST_V1_SCHOOL_CLAIMS"},
	}
	for _, c := range cases {
		if got := AuditEventName(c.method, c.path); got != c.want {
			t.Errorf("AuditEventName(%s,%s) = %s, want %s", c.method, c.path, got, c.want)
		}
	}
}

func TestAuditEventName_DistinctEventIDsCollapseToSameTemplate(t *testing.T) {
	a := AuditEventName("GET", "/v1/school/events/evt-1")
	b := AuditEventName("GET", "/v1/school/events/evt-2")
	if a != b {
		t.Fatalf("expected distinct event ids to collapse to the same name, got %s vs %s", a, b)
	}
}

func TestClassifyActor_Precedence(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"POST", "/api/admin/login", ActorOperator},
		{"GET", "/api/master/audit-logs", ActorOperator},
		{"GET", "/v1/school/events/evt-1/claimants", ActorOperator},
		{"POST", "/api/audit/receipts/verify", ActorAuditor},
		{"POST", "/api/audit/receipts/verify-code", ActorAuditor},
		{"POST", "/v1/school/claims", ActorWallet},
		{"POST", "/api/users/register", ActorUser},
		{"POST", "/api/auth/verify", ActorUser},
		{"POST", "/api/events/evt-1/claim", ActorUser},
		{"GET", "/v1/school/events", ActorSchool},
		{"GET", "/v1/school/events/evt-1", ActorSchool},
		{"GET", "/healthz", ActorSystem},
	}
	for _, c := range cases {
		if got := ClassifyActor(c.method, c.path); got != c.want {
			t.Errorf("ClassifyActor(%s,%s) = %s, want %s", c.method, c.path, got, c.want)
		}
	}
}

func TestMaskWallet(t *testing.T) {
	if got := MaskWallet("abcd1234efgh5678"); got != "abcd...5678" {
		t.Fatalf("unexpected mask: %s", got)
	}
	if got := MaskWallet("short"); got != "short" {
		t.Fatalf("expected short address to pass through unmasked, got %s", got)
	}
}
