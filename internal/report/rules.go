package report

import "fmt"

// Rules is the explanation posted as the first comment of every thread.
func Rules(startingGems int64) string {
	return fmt.Sprintf(rulesText, gems(startingGems))
}

const rulesText = `Welcome to **DailyTrade**, the daily game run entirely by a bot!

**How it works**

DailyTrade is a stock market, but instead of companies you invest in **subreddits**. A stock is worth more when its subreddit gets more posts. You join by announcing your first trade and start with **%s gems**.

**Example trade**

- On **day 1** I buy 400 gems worth of r/notinteresting stock.
- In the 24 hours before day 1 there were **50 posts** on r/notinteresting.
- On **day 3** I sell my stock.
- In the 24 hours before day 3 there were **100 posts** on r/notinteresting.
- The number of posts doubled, so I get **800 gems** back.

If the number of posts drops, you lose gems when you sell.

---

**Commands**

Put every command between square brackets. Text outside brackets is ignored, and several commands in one comment run in order, for example [buy 400 r/dailygames] and then [sell 200 r/notinteresting].

- **Buy**: [buy AMOUNT r/SUBREDDIT] spends AMOUNT gems on stock at today's post count.
- **Sell**: [sell AMOUNT r/SUBREDDIT] sells AMOUNT stocks at the current rate. [sell all r/SUBREDDIT] sells one subreddit, [sell all] sells everything.
- **Loan**: [loan AMOUNT] borrows gems. Interest is **5%% per day** and is charged at the start of each day.
- **Pay**: [pay AMOUNT] or [pay all] pays back your loan.
- **Exit**: [exit] deletes all of your data. You can join again later.

---

**Rules**

- You cannot add to a stock you already own. Sell it completely first.
- Only the subreddits listed in the post can be traded. Reply to this post to request more.
- Stock values update at **5 AM UTC** each day, based on the 24 hours before.
- Your own posts are not counted, so posting yourself does not move a price.
- You can only trade whole gems and whole stocks.
- You can buy a subreddit once and sell once per day, and take or pay a loan once per day.

Happy trading!

^(This post was created automatically by a bot. If you think I made a mistake, respond to this post.)`
