// chatcli is a minimal terminal presentation over the conversation
// library: it lists conversations, opens a session, and bridges stdin
// to the live connection. The library itself has no CLI surface; this
// exists as a reference consumer and a manual testing aid.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Srirag-c-r/dealGOAT/internal/config"
	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/backend"
	cacheadapter "github.com/Srirag-c-r/dealGOAT/internal/infrastructure/cache/adapter"
	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/cache/port"
	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/geocode"
	"github.com/Srirag-c-r/dealGOAT/internal/infrastructure/realtime"
	chat "github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/domain"
	"github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/location"
	"github.com/Srirag-c-r/dealGOAT/internal/pkg/chat/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	var (
		token          = flag.String("token", os.Getenv("DEALGOAT_TOKEN"), "API auth token")
		userID         = flag.Int64("user", 0, "current user id")
		email          = flag.String("email", "", "current user email")
		phone          = flag.String("phone", "", "current user phone (for /contact)")
		conversationID = flag.Int64("conversation", 0, "conversation to open; 0 lists conversations")
	)
	flag.Parse()

	if *token == "" || *userID == 0 || *email == "" {
		log.Fatal("usage: chatcli -token ... -user ... -email ... [-conversation N]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	api := backend.NewClient(cfg.APIBaseURL, *token, cfg.RequestTimeout)

	if *conversationID == 0 {
		listConversations(ctx, api, *userID)
		return
	}

	conversations, err := api.Conversations(ctx)
	if err != nil {
		log.Fatalf("list conversations: %v", err)
	}
	var conversation chat.Conversation
	for _, c := range conversations {
		if c.ID == *conversationID {
			conversation = c
			break
		}
	}
	if conversation.ID == 0 {
		log.Fatalf("conversation %d not found", *conversationID)
	}

	var cache port.Cache = cacheadapter.NewMemoryCache()
	if cfg.RedisURL != "" {
		redisCache, err := cacheadapter.NewRedisAdapter(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("redis unavailable, using in-memory geocode cache: %v", err)
		} else {
			cache = redisCache
		}
	}
	defer cache.Close()

	geocoder := geocode.NewCached(
		geocode.NewNominatim(cfg.NominatimURL, cfg.GeocodeLimit, cfg.RequestTimeout),
		cache, cfg.GeocodeCacheTTL)

	manager := realtime.NewManager(cfg.WSBaseURL, *token, cfg.DialTimeout)
	defer manager.Close()

	sess := session.New(session.Config{
		Conversation:      conversation,
		User:              chat.User{ID: *userID, Email: *email, Phone: *phone},
		Store:             api,
		Connector:         session.NewManagerConnector(manager),
		Geocoder:          geocoder,
		ReconnectAttempts: cfg.ReconnectAttempts,
	})
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		log.Fatalf("start session: %v", err)
	}

	fmt.Printf("-- %s (%s) --\n", conversation.CounterpartName(*userID), conversation.ListingTitle)
	for _, m := range sess.Timeline() {
		printMessage(m, *email)
	}

	go pollInbound(sess, *email)
	repl(ctx, sess)
}

func listConversations(ctx context.Context, api *backend.Client, userID int64) {
	conversations, err := api.Conversations(ctx)
	if err != nil {
		log.Fatalf("list conversations: %v", err)
	}
	for _, c := range conversations {
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		fmt.Printf("%4d  %-24s %s%s\n", c.ID, c.CounterpartName(userID), c.ListingTitle, unread)
	}
}

func pollInbound(sess *session.Session, email string) {
	seen := 0
	for sess.State() == session.StateLive {
		timeline := sess.Timeline()
		for _, m := range timeline[seen:] {
			if m.Origin == chat.OriginLive {
				printMessage(m, email)
			}
		}
		seen = len(timeline)
		if sug := sess.Suggestion(); sug.String() != "none" {
			fmt.Printf("[suggestion] buyer is asking about %s\n", sug)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func repl(ctx context.Context, sess *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/dismiss":
			sess.DismissSuggestion()
		case line == "/contact":
			report(sess.ShareContact())
		case line == "/city":
			report(sess.ShareLocationCity())
		case strings.HasPrefix(line, "/gps "):
			parts := strings.Fields(line)
			if len(parts) != 3 {
				fmt.Println("usage: /gps <lat> <lon>")
				continue
			}
			lat, latErr := strconv.ParseFloat(parts[1], 64)
			lon, lonErr := strconv.ParseFloat(parts[2], 64)
			if latErr != nil || lonErr != nil {
				fmt.Println("usage: /gps <lat> <lon>")
				continue
			}
			report(sess.ShareLocationGPS(lat, lon))
		case strings.HasPrefix(line, "/spot "):
			query := strings.TrimPrefix(line, "/spot ")
			candidates, err := sess.SearchMeetupSpots(ctx, query)
			if err != nil {
				fmt.Printf("search failed: %v\n", err)
				continue
			}
			if len(candidates) == 0 {
				fmt.Println("no spots found")
				continue
			}
			report(sess.ShareLocationSpot(candidates[0]))
		case line != "":
			report(sess.Send(line))
		}
	}
}

func report(sent bool) {
	if !sent {
		fmt.Println("not delivered; connection is not open")
	}
}

func printMessage(m chat.Message, email string) {
	who := "them"
	if m.SentBy(email) {
		who = "me"
	}
	if loc, ok := location.Decode(m.Content); ok {
		fmt.Printf("[%s] %s: shared location %q %s\n",
			m.CreatedAt.Format("15:04"), who, loc.Label, loc.MapURL)
		return
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), who, m.Content)
}
