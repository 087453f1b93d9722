package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mentionwatch/internal/cmdlog"
	"mentionwatch/internal/model"
	"mentionwatch/internal/ratelimit"
	"mentionwatch/internal/util"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var tweetCmd = &cobra.Command{
	Use:   "tweet <text...>",
	Short: "Post a status",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTweet,
}

var replyCmd = &cobra.Command{
	Use:   "reply <tweet-id> <text...>",
	Short: "Reply to a post",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runReply,
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search recent posts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <tweet-id>",
	Short: "Delete one of your posts",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

// withRetry runs fn once, or under the rate-limit policy when --retry is set.
func withRetry(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	if !retry {
		return fn(ctx)
	}
	return ratelimit.Default().Retry(ctx, endpoint, fn)
}

func joinArgs(args []string) string {
	return util.NormalizeWhitespace(strings.Join(args, " "))
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("whoami", func() error {
		svc, err := newService()
		if err != nil {
			return err
		}
		me, err := svc.GetMyProfile(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "@%s (%s) id=%s\n", me.Username, me.Name, me.ID)
		fmt.Fprintf(out, "followers=%d following=%d posts=%d\n", me.FollowersCount, me.FollowingCount, me.TweetCount)
		return nil
	})
}

func runTweet(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("tweet", func() error {
		svc, err := newService()
		if err != nil {
			return err
		}
		var t model.Tweet
		err = withRetry(cmd.Context(), "/2/tweets", func(ctx context.Context) error {
			var perr error
			t, perr = svc.Tweet(ctx, joinArgs(args))
			return perr
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "posted", t.ID)
		return nil
	})
}

func runReply(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("reply", func() error {
		svc, err := newService()
		if err != nil {
			return err
		}
		var t model.Tweet
		err = withRetry(cmd.Context(), "/2/tweets", func(ctx context.Context) error {
			var perr error
			t, perr = svc.ReplyToTweet(ctx, args[0], joinArgs(args[1:]))
			return perr
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replied to %s with %s\n", args[0], t.ID)
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("search", func() error {
		svc, err := newService()
		if err != nil {
			return err
		}
		res, err := svc.SearchTweets(cmd.Context(), joinArgs(args))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(res.Tweets) == 0 {
			fmt.Fprintln(out, "no results")
			return nil
		}
		for _, t := range res.Tweets {
			fmt.Fprintf(out, "%s  %s  %s\n", t.ID, t.AuthorID, util.Truncate(util.NormalizeWhitespace(t.Text), 100))
		}
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return cmdlog.Run("delete", func() error {
		svc, err := newService()
		if err != nil {
			return err
		}
		var ok bool
		err = withRetry(cmd.Context(), "/2/tweets/:id", func(ctx context.Context) error {
			var derr error
			ok, derr = svc.DeleteTweet(ctx, args[0])
			return derr
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("tweet %s was not deleted", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
		return nil
	})
}
