package bot

import (
	"testing"

	"pgregory.net/rapid"

	"survivor-pool-bot/internal/config"
)

// A user is an admin if and only if their ID appears in the configured
// admin list.
func TestAdminPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numAdmins := rapid.IntRange(1, 10).Draw(t, "numAdmins")
		adminIDs := make([]int64, numAdmins)
		adminSet := make(map[int64]bool)
		for i := 0; i < numAdmins; i++ {
			adminIDs[i] = rapid.Int64Range(1, 1000000000).Draw(t, "adminID")
			adminSet[adminIDs[i]] = true
		}

		cfg := &config.Config{
			Admin: config.AdminConfig{IDs: adminIDs},
		}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")
		if got, want := cfg.IsAdmin(userID), adminSet[userID]; got != want {
			t.Fatalf("Admin check mismatch: userID=%d, adminIDs=%v, expected=%v, got=%v",
				userID, adminIDs, want, got)
		}
	})
}

// A group chat is allowed if and only if its ID appears in the whitelist.
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(1, 10).Draw(t, "numChats")
		chatIDs := make([]int64, numChats)
		chatSet := make(map[int64]bool)
		for i := 0; i < numChats; i++ {
			// Group chat IDs are typically negative
			chatIDs[i] = -rapid.Int64Range(1, 1000000000).Draw(t, "chatID")
			chatSet[chatIDs[i]] = true
		}

		cfg := &config.Config{
			Whitelist: config.WhitelistConfig{Chats: chatIDs},
		}

		testChatID := -rapid.Int64Range(1, 1000000000).Draw(t, "testChatID")
		if got, want := cfg.IsChatAllowed(testChatID), chatSet[testChatID]; got != want {
			t.Fatalf("Whitelist check mismatch: chatID=%d, whitelistedChats=%v, expected=%v, got=%v",
				testChatID, chatIDs, want, got)
		}
	})
}

// An empty whitelist allows every chat.
func TestEmptyWhitelistAllowsAllChatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{
			Whitelist: config.WhitelistConfig{Chats: []int64{}},
		}

		chatID := -rapid.Int64Range(1, 1000000000).Draw(t, "chatID")
		if !cfg.IsChatAllowed(chatID) {
			t.Fatalf("With empty whitelist, chat ID %d should be allowed", chatID)
		}
	})
}

// Once marked, a user stays allowed for private chat.
func TestPrivateUserCacheProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		AllowPrivateUser(userID)

		if !IsPrivateUserAllowed(userID) {
			t.Fatalf("User %d should be allowed after being added to private user cache", userID)
		}
	})
}
