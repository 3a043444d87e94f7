package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	v1 "github.com/and161185/campus-board/internal/api/boardv1"
	"github.com/and161185/campus-board/internal/convert"
	"github.com/and161185/campus-board/internal/identity"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/modclient"
)

// ------- argument helpers -------

// parseSubject validates a (type, id) pair from flags.
func parseSubject(typ, id string) (*v1.Subject, error) {
	st, err := model.ParseSubjectType(typ)
	if err != nil {
		return nil, err
	}
	if _, err := convert.ParseID("id", id); err != nil {
		return nil, err
	}
	return &v1.Subject{Type: string(st), Id: id}, nil
}

func modelSubject(typ, id string) (model.Subject, error) {
	s, err := parseSubject(typ, id)
	if err != nil {
		return model.Subject{}, err
	}
	return convert.FromSubject(s)
}

// excerpt shortens s to n runes on one line.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ------- rendering -------

// renderFeed prints one row per post.
func renderFeed(w io.Writer, posts []*v1.Post) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCORE\tCOMMENTS\tALIAS\tCREATED\tTEXT")
	for _, p := range posts {
		ps, err := convert.FromPost(p)
		if err != nil {
			return err
		}
		alias := ps.Alias
		if ps.Mine {
			alias += " (you)"
		}
		text := ps.Body
		if ps.Title != "" {
			text = ps.Title + ": " + ps.Body
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			ps.ID, ps.Score, ps.Comments, alias, tsString(p.CreatedAt), excerpt(text, 60))
	}
	return tw.Flush()
}

// renderThread prints a post followed by its comments, oldest first.
// A deleted post leaves a placeholder line above the surviving comments.
func renderThread(w io.Writer, t *v1.GetThreadResponse) error {
	if t.Post == nil {
		fmt.Fprintln(w, "[post deleted]")
	} else {
		p, err := convert.FromPost(t.Post)
		if err != nil {
			return err
		}
		if p.Title != "" {
			fmt.Fprintf(w, "# %s\n", p.Title)
		}
		fmt.Fprintf(w, "%s  score=%d  %s%s\n", p.Alias, p.Score, tsString(t.Post.CreatedAt), mineTag(p.Mine))
		fmt.Fprintln(w, p.Body)
	}
	for _, c := range t.Comments {
		cv, err := convert.FromComment(c)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  - %s [%d] %s%s: %s\n", cv.Alias, cv.Score, cv.ID, mineTag(cv.Mine), cv.Body)
	}
	return nil
}

func mineTag(mine bool) string {
	if mine {
		return " (you)"
	}
	return ""
}

// renderToken prints the token identity fields. The secret is never shown.
func renderToken(w io.Writer, tok model.PostingToken, h model.TokenHash) {
	fmt.Fprintf(w, "period:  %s\nexpires: %s\nhash:    %s\nalias:   %s\n",
		tok.Period, tok.ExpiresAt.UTC().Format(time.RFC3339), h, identity.Alias(string(h)))
}

// renderFlags prints the moderation flag report.
func renderFlags(w io.Writer, entries []modclient.FlagEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tID\tFLAGS\tREPORTERS\tLATEST\tEXCERPT")
	for _, e := range entries {
		ex := excerpt(e.Excerpt, 40)
		if !e.Exists {
			ex = "[gone]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			e.SubjectType, e.ID, e.Count, e.Reporters, e.LatestAt.UTC().Format(time.RFC3339), ex)
	}
	return tw.Flush()
}

// ------- posting token calls -------

// withPostingToken runs call with today's posting token attached. A stale
// token rejected by the server is dropped and the call retried once.
func withPostingToken(ctx context.Context, g globals, call func(v1.BoardClient) error) error {
	cache := tokenCache(g)
	for attempt := 0; ; attempt++ {
		tok, err := cache.Get(ctx)
		if err != nil {
			return err
		}
		cc, cli, err := dial(g, &tok)
		if err != nil {
			return err
		}
		err = call(cli)
		_ = cc.Close()
		if err != nil && expired(err) && attempt == 0 {
			cache.Invalidate()
			continue
		}
		return err
	}
}

func cmdToken(ctx context.Context, g globals) error {
	h, tok, err := myHash(ctx, g)
	if err != nil {
		return err
	}
	renderToken(os.Stdout, tok, h)
	return nil
}

func cmdWhoami(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	thread := fs.String("thread", "", "post id to scope the alias to")
	_ = fs.Parse(args)
	if *thread != "" {
		if _, err := convert.ParseID("thread", *thread); err != nil {
			return err
		}
	}
	h, _, err := myHash(ctx, g)
	if err != nil {
		return err
	}
	fmt.Println(identity.ScopedAlias(h, *thread))
	return nil
}

func cmdAlias(args []string) error {
	fs := flag.NewFlagSet("alias", flag.ExitOnError)
	key := fs.String("key", "", "any string")
	_ = fs.Parse(args)
	fmt.Println(identity.Alias(*key))
	return nil
}

func cmdPost(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	title := fs.String("title", "", "optional title")
	body := fs.String("body", "", "text")
	_ = fs.Parse(args)
	if strings.TrimSpace(*body) == "" {
		return errors.New("-body required")
	}
	return withPostingToken(ctx, g, func(cli v1.BoardClient) error {
		resp, err := cli.CreatePost(ctx, &v1.CreatePostRequest{Title: *title, Body: *body})
		if err != nil {
			return err
		}
		printJSON(resp.Post)
		return nil
	})
}

func cmdComment(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	post := fs.String("post", "", "post id")
	body := fs.String("body", "", "text")
	_ = fs.Parse(args)
	if _, err := convert.ParseID("post", *post); err != nil {
		return err
	}
	if strings.TrimSpace(*body) == "" {
		return errors.New("-body required")
	}
	return withPostingToken(ctx, g, func(cli v1.BoardClient) error {
		resp, err := cli.CreateComment(ctx, &v1.CreateCommentRequest{PostId: *post, Body: *body})
		if err != nil {
			return err
		}
		printJSON(resp.Comment)
		return nil
	})
}

func cmdVote(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("vote", flag.ExitOnError)
	typ := fs.String("type", "post", "post|comment")
	id := fs.String("id", "", "subject id")
	value := fs.Int("value", 1, "1 or -1")
	_ = fs.Parse(args)
	sub, err := parseSubject(*typ, *id)
	if err != nil {
		return err
	}
	if *value != 1 && *value != -1 {
		return errors.New("-value must be 1 or -1")
	}
	return withPostingToken(ctx, g, func(cli v1.BoardClient) error {
		resp, err := cli.Vote(ctx, &v1.VoteRequest{Subject: sub, Value: int32(*value)})
		if err != nil {
			return err
		}
		fmt.Printf("score: %d\n", resp.Score)
		return nil
	})
}

func cmdFlag(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("flag", flag.ExitOnError)
	typ := fs.String("type", "post", "post|comment")
	id := fs.String("id", "", "subject id")
	reason := fs.String("reason", "", "optional reason")
	_ = fs.Parse(args)
	sub, err := parseSubject(*typ, *id)
	if err != nil {
		return err
	}
	return withPostingToken(ctx, g, func(cli v1.BoardClient) error {
		if _, err := cli.Flag(ctx, &v1.FlagRequest{Subject: sub, Reason: *reason}); err != nil {
			return err
		}
		fmt.Println("flagged")
		return nil
	})
}

func cmdRm(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	typ := fs.String("type", "post", "post|comment")
	id := fs.String("id", "", "subject id")
	_ = fs.Parse(args)
	sub, err := parseSubject(*typ, *id)
	if err != nil {
		return err
	}
	return withPostingToken(ctx, g, func(cli v1.BoardClient) error {
		resp, err := cli.Delete(ctx, &v1.DeleteRequest{Subject: sub})
		if err != nil {
			return err
		}
		if resp.Ok {
			fmt.Println("deleted")
		} else {
			fmt.Println("already gone")
		}
		return nil
	})
}

// feedCall reads without a token unless one is configured, so "mine" marks show when possible.
func feedCall(ctx context.Context, g globals, call func(v1.BoardClient) error) error {
	if g.issuerURL != "" {
		return withPostingToken(ctx, g, call)
	}
	cc, cli, err := dial(g, nil)
	if err != nil {
		return err
	}
	defer cc.Close()
	return call(cli)
}

func cmdFeed(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	sort := fs.String("sort", "new", "new|hot")
	limit := fs.Int("limit", 20, "max posts")
	asJSON := fs.Bool("json", false, "print raw JSON")
	_ = fs.Parse(args)
	if _, err := convert.FromSort(*sort); err != nil {
		return err
	}
	return feedCall(ctx, g, func(cli v1.BoardClient) error {
		resp, err := cli.ListPosts(ctx, &v1.ListPostsRequest{Sort: *sort, Limit: int32(*limit)})
		if err != nil {
			return err
		}
		if *asJSON {
			printJSON(resp.Posts)
			return nil
		}
		return renderFeed(os.Stdout, resp.Posts)
	})
}

func cmdThread(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("thread", flag.ExitOnError)
	id := fs.String("id", "", "post id")
	_ = fs.Parse(args)
	if _, err := convert.ParseID("id", *id); err != nil {
		return err
	}
	return feedCall(ctx, g, func(cli v1.BoardClient) error {
		resp, err := cli.GetThread(ctx, &v1.GetThreadRequest{PostId: *id})
		if err != nil {
			return err
		}
		return renderThread(os.Stdout, resp)
	})
}

// ------- moderator calls -------

func cmdModLogin(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("mod-login", flag.ExitOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	_ = fs.Parse(args)
	if *user == "" || *pass == "" {
		return errors.New("-u and -p required")
	}
	tok, err := modclient.New(g.admin, "", nil).Login(ctx, *user, *pass)
	if err != nil {
		return err
	}
	if err := saveToken(tok.AccessToken, tok.ExpiresAt); err != nil {
		return err
	}
	fmt.Println("OK, moderator token saved")
	return nil
}

func cmdModRm(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("mod-rm", flag.ExitOnError)
	typ := fs.String("type", "post", "post|comment")
	id := fs.String("id", "", "subject id")
	_ = fs.Parse(args)
	sub, err := modelSubject(*typ, *id)
	if err != nil {
		return err
	}
	token, err := loadToken()
	if err != nil {
		return err
	}
	res, err := modclient.New(g.admin, token, nil).Delete(ctx, sub)
	printJSON(res)
	return err
}

func cmdModFlags(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("mod-flags", flag.ExitOnError)
	limit := fs.Int("limit", 50, "max subjects")
	_ = fs.Parse(args)
	token, err := loadToken()
	if err != nil {
		return err
	}
	entries, err := modclient.New(g.admin, token, nil).Flags(ctx, *limit)
	if err != nil {
		return err
	}
	return renderFlags(os.Stdout, entries)
}
