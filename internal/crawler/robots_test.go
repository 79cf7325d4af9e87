package crawler

import "testing"

func TestParseRobotsWildcardGroup(t *testing.T) {
	body := "User-agent: *\nDisallow: /admin\nAllow: /admin/public\n"
	rules := parseRobots(body, "corpusloop-bot")

	if rules.Allowed("/admin/secrets") {
		t.Fatal("expected /admin/secrets to be disallowed")
	}
	if !rules.Allowed("/admin/public") {
		t.Fatal("expected the more specific Allow prefix to win")
	}
	if !rules.Allowed("/blog") {
		t.Fatal("expected an unrelated path to be allowed")
	}
}

func TestParseRobotsPrefersSpecificAgentGroup(t *testing.T) {
	body := "User-agent: *\nDisallow: /\n\nUser-agent: corpusloop-bot\nDisallow: /private\n"
	rules := parseRobots(body, "corpusloop-bot/1.0")

	if !rules.Allowed("/blog") {
		t.Fatal("expected the specific-agent group to override the wildcard Disallow: /")
	}
	if rules.Allowed("/private") {
		t.Fatal("expected /private to stay disallowed under the specific group")
	}
}

func TestParseRobotsCrawlDelay(t *testing.T) {
	body := "User-agent: *\nCrawl-delay: 2\nDisallow:\n"
	rules := parseRobots(body, "corpusloop-bot")
	if rules.CrawlDelay().Seconds() != 2 {
		t.Fatalf("CrawlDelay() = %v, want 2s", rules.CrawlDelay())
	}
}
