package store

import (
	"reflect"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/shipmatebot/shipmate/internal/models"
)

func openTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Setting{}, &models.User{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	st, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st, db
}

func TestNew_NilDB(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestProjectConfig_DefaultWhenUnset(t *testing.T) {
	st, _ := openTestStore(t)
	got := st.ProjectConfig()
	if !reflect.DeepEqual(got, DefaultProjectConfig) {
		t.Errorf("ProjectConfig = %+v, want default %+v", got, DefaultProjectConfig)
	}
}

func TestProjectConfig_RoundTrip(t *testing.T) {
	st, _ := openTestStore(t)
	want := ProjectConfig{ProjectPath: "/src/app", Targets: []string{"App", "App Lite"}}
	if err := st.SetProjectConfig(want); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := st.ProjectConfig(); !reflect.DeepEqual(got, want) {
		t.Errorf("ProjectConfig = %+v, want %+v", got, want)
	}
}

func TestBotSettings_RoundTrip(t *testing.T) {
	st, _ := openTestStore(t)

	if got := st.BotSettings(); !reflect.DeepEqual(got, DefaultBotSettings) {
		t.Errorf("BotSettings = %+v, want default", got)
	}

	want := BotSettings{LastBranch: "release/2.0", LastVersion: "2.0 14"}
	if err := st.SetBotSettings(want); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := st.BotSettings(); !reflect.DeepEqual(got, want) {
		t.Errorf("BotSettings = %+v, want %+v", got, want)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	st, db := openTestStore(t)
	want := ProjectConfig{ProjectPath: "/persisted", Targets: []string{"X"}}
	if err := st.SetProjectConfig(want); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A second Store over the same database sees the persisted value,
	// proving the cache is a cache and not the source of truth.
	st2, err := New(db)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if got := st2.ProjectConfig(); !reflect.DeepEqual(got, want) {
		t.Errorf("reopened ProjectConfig = %+v, want %+v", got, want)
	}
}

func TestStore_CorruptRowFallsBackToDefault(t *testing.T) {
	st, db := openTestStore(t)
	db.Save(&models.Setting{Key: "project_config", Value: "{not json"})

	got := st.ProjectConfig()
	if !reflect.DeepEqual(got, DefaultProjectConfig) {
		t.Errorf("ProjectConfig = %+v, want default on corrupt row", got)
	}
}

func TestUserAvailable_AutoRegistersUnavailable(t *testing.T) {
	st, _ := openTestStore(t)

	available, err := st.UserAvailable(99, "newcomer")
	if err != nil {
		t.Fatalf("UserAvailable: %v", err)
	}
	if available {
		t.Error("unknown user reported available")
	}

	users, err := st.Users()
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 1 || users[0].ID != 99 || users[0].Username != "newcomer" || users[0].Available {
		t.Errorf("users = %+v", users)
	}
}

func TestSetUserAvailable(t *testing.T) {
	st, _ := openTestStore(t)
	st.UserAvailable(5, "val")

	if err := st.SetUserAvailable(5, true); err != nil {
		t.Fatalf("SetUserAvailable: %v", err)
	}
	available, err := st.UserAvailable(5, "val")
	if err != nil {
		t.Fatalf("UserAvailable: %v", err)
	}
	if !available {
		t.Error("approved user reported unavailable")
	}
}

func TestSetUserAvailable_Unknown(t *testing.T) {
	st, _ := openTestStore(t)
	if err := st.SetUserAvailable(404, true); err == nil {
		t.Error("expected error approving unknown user")
	}
}

func TestDeleteUser(t *testing.T) {
	st, _ := openTestStore(t)
	st.UserAvailable(5, "val")

	if err := st.DeleteUser(5); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	users, _ := st.Users()
	if len(users) != 0 {
		t.Errorf("users = %+v, want empty", users)
	}

	if err := st.DeleteUser(5); err == nil {
		t.Error("expected error deleting missing user")
	}
}
