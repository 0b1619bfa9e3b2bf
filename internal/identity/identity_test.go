package identity

import (
	"context"
	"testing"
)

func TestUserID(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Error("Expected no user on a bare context")
	}
	if _, ok := UserID(WithUserID(context.Background(), "   ")); ok {
		t.Error("Expected blank user to be ignored")
	}
	id, ok := UserID(WithUserID(context.Background(), " admin-7 "))
	if !ok || id != "admin-7" {
		t.Errorf("Expected admin-7, got %q %v", id, ok)
	}
}
