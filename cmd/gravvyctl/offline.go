package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matheus3301/gravvy/internal/daemon"
	"github.com/matheus3301/gravvy/internal/session"
	"github.com/matheus3301/gravvy/internal/store"
	"github.com/matheus3301/gravvy/internal/view"
)

// loadGraph reads the committed state of the account's store.
func loadGraph(ctx context.Context) (*view.Graph, error) {
	account, err := resolveAccount()
	if err != nil {
		return nil, err
	}
	path := session.DefaultLayout().DBPath(account)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no store for %s: %w", account, err)
	}
	db, err := store.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	cs, err := db.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	g := view.New()
	g.Apply(cs)
	return g, nil
}

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "List videos in display order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context())
		if err != nil {
			return err
		}
		list, err := daemon.List(g.Videos(), daemon.VideoFields)
		if err != nil {
			return err
		}
		return printVideos(list)
	},
}

var videoCmd = &cobra.Command{
	Use:   "video <hash-key>",
	Short: "Show one video with its clips",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context())
		if err != nil {
			return err
		}
		v, ok := g.Video(args[0])
		if !ok {
			return fmt.Errorf("video %s: %w", args[0], store.ErrNotFound)
		}
		clips := g.Clips(v.HashKey)
		if flagJSON {
			list, err := daemon.List(clips, daemon.ClipFields)
			if err != nil {
				return err
			}
			list.Fields["video"], err = structValue(daemon.VideoFields(v))
			if err != nil {
				return err
			}
			return outputJSON(list)
		}
		fmt.Printf("%s  %s\n", v.HashKey, v.Title)
		fmt.Printf("Owner: %s\n", g.DisplayName(v.OwnerPhone))
		for _, c := range clips {
			fmt.Printf("  %3d  %-20s %5.1fs  %s\n", c.Order, c.ID, c.Duration, g.DisplayName(c.OwnerPhone))
		}
		return nil
	},
}

var membersCmd = &cobra.Command{
	Use:   "members <hash-key>",
	Short: "List the members of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context())
		if err != nil {
			return err
		}
		members := g.Members(args[0])
		if flagJSON {
			list, err := daemon.List(members, daemon.MemberFields)
			if err != nil {
				return err
			}
			return outputJSON(list)
		}
		for _, m := range members {
			state := "active"
			if m.Status == store.MemberInvited {
				state = "invited"
			}
			fmt.Printf("%-16s %-24s %s\n", m.UserPhone, g.DisplayName(m.UserPhone), state)
		}
		return nil
	},
}

var contactsSearch string

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List address book contacts by section",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd.Context())
		if err != nil {
			return err
		}
		contacts := g.SearchContacts(contactsSearch)
		if flagJSON {
			list, err := daemon.List(contacts, daemon.ContactFields)
			if err != nil {
				return err
			}
			return outputJSON(list)
		}
		section := ""
		for _, c := range contacts {
			if contactsSearch == "" && c.Section != section {
				section = c.Section
				fmt.Printf("%s\n", section)
			}
			fmt.Printf("  %-32s %v\n", c.FullName(), c.Phones)
		}
		return nil
	},
}

func init() {
	contactsCmd.Flags().StringVar(&contactsSearch, "search", "", "fuzzy match contact names")
}
