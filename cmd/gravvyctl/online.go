package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matheus3301/gravvy/internal/client"
	"github.com/matheus3301/gravvy/internal/daemon"
	"github.com/matheus3301/gravvy/internal/lock"
	"github.com/matheus3301/gravvy/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon, store and sign-in status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := resolveAccount()
		if err != nil {
			return err
		}
		pid, err := lock.Holder(session.DefaultLayout().Dir(account))
		if err != nil {
			return err
		}
		if pid == 0 {
			fmt.Printf("Account: %s\nDaemon:  not running\n", account)
			return nil
		}
		return withDaemon(func(ctx context.Context, c *client.Client, _ string) error {
			resp, err := c.Call(ctx, daemon.MethodStatus, nil)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(resp)
			}
			auth, err := c.Serving(ctx, daemon.HealthAuth)
			if err != nil {
				return err
			}
			fmt.Printf("Account: %s\n", field(resp, "account").GetStringValue())
			fmt.Printf("Daemon:  running (pid %d)\n", pid)
			fmt.Printf("Store:   %s\n", field(resp, "store").GetStringValue())
			fmt.Printf("Auth:    %v\n", auth)
			fmt.Printf("Videos:  %.0f\n", field(resp, "videos").GetNumberValue())
			fmt.Printf("Uptime:  %.0fms\n", field(resp, "uptime_ms").GetNumberValue())
			return nil
		})
	},
}

var (
	refreshReorder    bool
	refreshCollection string
	refreshVideo      string
	refreshPhone      string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh from the server",
	Long: `Refresh every collection, or one with --collection
(videos, video, members, activities, favorites, contacts, thumbnail).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(daemon.MethodRefresh, map[string]any{
			"reorder":    refreshReorder,
			"collection": refreshCollection,
			"hash_key":   refreshVideo,
			"phone":      refreshPhone,
		})
	},
}

var signInToken string

var signInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign the daemon's account in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := signInToken
		if token == "" {
			token = os.Getenv("GRAVVY_TOKEN")
		}
		return call(daemon.MethodSignIn, map[string]any{"token": token})
	},
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and close the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(daemon.MethodSignOut, nil)
	},
}

var playCmd = videoAction("play <hash-key>", "Count a play", daemon.MethodPlay)
var likeCmd = videoAction("like <hash-key>", "Like or unlike a video", daemon.MethodToggleLike)
var clearCmd = videoAction("clear <hash-key>", "Mark a video's notifications seen", daemon.MethodClearNotifications)
var leaveCmd = videoAction("leave <hash-key>", "Leave a video, deleting it if owned", daemon.MethodLeave)

var revokeCmd = &cobra.Command{
	Use:   "revoke <hash-key> <phone>",
	Short: "Remove a member from an owned video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(daemon.MethodRevokeMember, map[string]any{"hash_key": args[0], "phone": args[1]})
	},
}

var deleteClipsCmd = &cobra.Command{
	Use:   "delete-clips <hash-key> <clip-id>...",
	Short: "Delete clips from a video",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]any, 0, len(args)-1)
		for _, id := range args[1:] {
			ids = append(ids, id)
		}
		return call(daemon.MethodDeleteClips, map[string]any{"hash_key": args[0], "clip_ids": ids})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, c *client.Client, _ string) error {
			resp, err := c.Call(ctx, daemon.MethodCreateVideo, map[string]any{"title": args[0]})
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(resp)
			}
			fmt.Println(field(resp, "hash_key").GetStringValue())
			return nil
		})
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshReorder, "reorder", false, "rerank videos after the refresh")
	refreshCmd.Flags().StringVar(&refreshCollection, "collection", "", "refresh only this collection")
	refreshCmd.Flags().StringVar(&refreshVideo, "video", "", "video hash key for video and members")
	refreshCmd.Flags().StringVar(&refreshPhone, "phone", "", "user phone for thumbnail")
	signInCmd.Flags().StringVar(&signInToken, "token", "", "authentication token; defaults to $GRAVVY_TOKEN")
}

func videoAction(use, short, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(method, map[string]any{"hash_key": args[0]})
		},
	}
}

func call(method string, args map[string]any) error {
	return withDaemon(func(ctx context.Context, c *client.Client, _ string) error {
		resp, err := c.Call(ctx, method, args)
		if err != nil {
			return err
		}
		if flagJSON {
			return outputJSON(resp)
		}
		fmt.Println("ok")
		return nil
	})
}
