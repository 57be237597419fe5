package game

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const StartingGems = int64(1000)

// MaxGems bounds every balance and loan principal.
const MaxGems = int64(math.MaxInt64)

// InterestRate is the daily interest charged on outstanding loan principal.
var InterestRate = decimal.RequireFromString("0.05")

var (
	ErrOracleUnavailable = errors.New("post count oracle unavailable")
	ErrNotPlayer         = errors.New("not a player")
)

// DefaultIgnoredUsers are bot and moderation accounts whose comments are never executed.
var DefaultIgnoredUsers = []string{"B0tRank", "WhyNotCollegeBoard"}

// DefaultSubreddits is the allow-list of subreddits whose stocks can be traded.
var DefaultSubreddits = []string{
	"dailygames", "notinteresting", "learnpython", "mildlyinfuriating", "196", "3Blue1Brown",
	"AmIOverreacting", "AmITheAsshole", "Angryupvote", "Animal", "animation", "antimeme",
	"anythingbutmetric", "AskOuija", "assholedesign", "BeAmazed", "birdification", "birthofasub",
	"blursedimages", "brandnewsentence", "capybara", "chemistrymemes", "clevercomebacks",
	"confidentlyincorrect", "copypasta", "countablepixels", "Damnthatsinteresting",
	"dataisbeautiful", "DnD", "dndmemes", "ExplainTheJoke", "facepalm", "Fantasy", "foundsatan",
	"foundthemobileuser", "FreeCompliments", "gameofthrones", "geocaching", "girlsarentreal",
	"GuysBeingDudes", "iamverysmart", "ididnthaveeggs", "ihadastroke", "im14andthisisdeep",
	"Inroverts", "interesting", "interestingasfuck", "LeftTheBurnerOn", "LetGirlsHaveFun", "lfg",
	"lgbt", "lies", "linguisticshumor", "LinkedInLunatics", "lostredditors", "MadeMeSmile",
	"mapporncirclejerk", "MathJokes", "mathmemes", "meirl", "meme", "memes", "mildlyinteresting",
	"MurderedByWords", "nature", "Nicegirls", "NoahGetTheBoat", "NonPoliticalTwitter",
	"oddlyspecific", "offmychest", "onejob", "penpals", "PeterExplainsTheJoke", "pettyrevenge",
	"physicsmemes", "politics", "PrematureTruncation", "rareinsults", "rpg", "screenshotsarehard",
	"softwaregore", "sssdfg", "SUBREDDITNAME", "technicallythetruth", "teenagersbutbetter",
	"thatHappened", "theydidthemath", "Tinder", "trolleyproblem", "TwoSentenceHorror",
	"vexillologycirclejerk", "circlejerk", "WeirdEggs", "Whatcouldgowrong", "whatisthisthing",
	"woosh", "wordle", "AnarchyChess", "shittydarksouls", "KitchenConfidential", "CountOnceADay",
	"countwithchickenlady", "SquaredCircle", "chess", "introverts", "Warhammer40k", "PrimarchGFs",
	"SpeedOfLobsters",
}

// Universe is the case-insensitive allow-list of tradable subreddits.
type Universe struct {
	names   []string
	byLower map[string]string
}

func NewUniverse(names []string) *Universe {
	u := &Universe{byLower: make(map[string]string, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(strings.TrimPrefix(n, "r/"))
		if n == "" {
			continue
		}
		if _, dup := u.byLower[strings.ToLower(n)]; dup {
			continue
		}
		u.byLower[strings.ToLower(n)] = n
		u.names = append(u.names, n)
	}
	sort.Slice(u.names, func(i, j int) bool {
		return strings.ToLower(u.names[i]) < strings.ToLower(u.names[j])
	})
	return u
}

// Canonical returns the allow-list spelling of subreddit.
func (u *Universe) Canonical(subreddit string) (string, bool) {
	name, ok := u.byLower[strings.ToLower(subreddit)]
	return name, ok
}

func (u *Universe) Allowed(subreddit string) bool {
	_, ok := u.Canonical(subreddit)
	return ok
}

// Names returns the allow-list sorted case-insensitively.
func (u *Universe) Names() []string {
	return append([]string(nil), u.names...)
}

// Payout is the number of gems amount stocks bought at value earn when posts posts were
// observed, rounded half to even and capped at MaxGems.
func Payout(amount int64, posts int, value float64) int64 {
	d := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(posts))).
		Mul(decimal.NewFromFloat(value)).
		RoundBank(0)
	if d.GreaterThan(maxGems) {
		return MaxGems
	}
	return d.IntPart()
}

var maxGems = decimal.NewFromInt(MaxGems)

// Interest is the daily interest on principal, rounded half to even.
func Interest(principal int64) int64 {
	return decimal.NewFromInt(principal).Mul(InterestRate).RoundBank(0).IntPart()
}

// PostValue is the gems a single post is worth per stock when posts posts were observed.
func PostValue(posts int) float64 {
	if posts <= 0 {
		return 0
	}
	return 1 / float64(posts)
}
