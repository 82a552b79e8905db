package signature

import "testing"

func TestVerify(t *testing.T) {
	body := []byte(`{"strategy":"scalping","side":"buy"}`)
	secret := "topsecret"

	sig := Sign(body, secret)

	if !Verify(body, sig, secret) {
		t.Fatalf("valid signature rejected")
	}
	// 带算法前缀的形式也要能验过
	if !Verify(body, "sha256="+sig, secret) {
		t.Fatalf("prefixed signature rejected")
	}
}

func TestVerifyRejects(t *testing.T) {
	body := []byte(`{"strategy":"scalping"}`)
	secret := "topsecret"
	sig := Sign(body, secret)

	cases := []struct {
		name     string
		body     []byte
		provided string
		secret   string
	}{
		{"empty signature", body, "", secret},
		{"empty secret", body, sig, ""},
		{"not hex", body, "zzzz", secret},
		{"wrong secret", body, Sign(body, "other"), secret},
		{"tampered body", []byte(`{"strategy":"other"}`), sig, secret},
	}
	for _, c := range cases {
		if Verify(c.body, c.provided, c.secret) {
			t.Errorf("%s: expected rejection", c.name)
		}
	}
}
