package presenters

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/soundboard/internal/repository"
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
)

func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Mask hides all but the last reveal characters of data.
func Mask(data string, reveal int) string {
	n := len(data) - reveal
	if n <= 0 {
		return data
	}
	return strings.Repeat(`\*`, n) + data[n:]
}

// Guild is the guild a stats request was made in. A zero Guild means
// the request came from outside any guild.
type Guild struct {
	ID   string
	Name string
}

func usageLines(counts []repository.CommandCount) string {
	lines := make([]string, 0, len(counts))
	for _, c := range counts {
		lines = append(lines, fmt.Sprintf("`/%s`: %d uses", c.Command, c.Count))
	}
	return strings.Join(lines, "\n")
}

// OverviewStatsEmbeds lists the use counts of every global command and,
// inside a guild, of the guild's own commands.
func OverviewStatsEmbeds(global, local []repository.CommandCount, guild Guild) []*discordgo.MessageEmbed {
	embeds := []*discordgo.MessageEmbed{{
		Title:       "Global command stats",
		Description: usageLines(global),
		Color:       ColorGlobal,
	}}

	if guild.ID != "" && len(local) > 0 {
		embeds = append(embeds, &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("%s command stats", EscapeMarkdown(guild.Name)),
			Description: usageLines(local),
			Color:       ColorGuild,
		})
	}
	return embeds
}

// CommandStatsEmbeds shows the use counts of a single command name. Other
// guilds using a global command are only identified by a masked ID.
// localCount is ignored unless hasLocal is set.
func CommandStatsEmbeds(command string, byGuild []repository.GuildCount, localCount int64, hasLocal bool, guild Guild) []*discordgo.MessageEmbed {
	var embeds []*discordgo.MessageEmbed

	if len(byGuild) > 0 {
		var total int64
		lines := make([]string, 0, len(byGuild)+1)
		for _, g := range byGuild {
			label := Mask(g.GuildID, 4)
			if guild.ID != "" && g.GuildID == guild.ID {
				label = guild.Name
			}
			lines = append(lines, fmt.Sprintf("%s: %d uses", label, g.Count))
			total += g.Count
		}
		lines = append(lines, fmt.Sprintf("Total: %d uses", total))

		embeds = append(embeds, &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("Stats for global command `/%s`", command),
			Description: strings.Join(lines, "\n"),
			Color:       ColorGlobal,
		})
	}

	if guild.ID != "" && hasLocal {
		embeds = append(embeds, &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("Stats for `/%s` in %s", command, EscapeMarkdown(guild.Name)),
			Description: fmt.Sprintf("%d uses", localCount),
			Color:       ColorGuild,
		})
	}

	if len(embeds) == 0 {
		embeds = append(embeds, &discordgo.MessageEmbed{
			Title:       "404 Not Found",
			Description: fmt.Sprintf("No stats found for any command named `/%s`", command),
			Color:       ColorError,
		})
	}
	return embeds
}
