// Package catalog holds the static table of orderable blocks.
package catalog

// Block is an orderable item
type Block struct {
	ID       string
	Name     string
	Category string
}

// Category groups blocks for selection lists
type Category struct {
	ID   string
	Name string
}

var categories = []Category{
	{ID: "crops", Name: "Crops"},
	{ID: "wood", Name: "Wood"},
	{ID: "stone", Name: "Stone"},
	{ID: "ores", Name: "Ores & Minerals"},
	{ID: "mob_drops", Name: "Mob Drops"},
	{ID: "nature", Name: "Nature"},
	{ID: "nether", Name: "Nether"},
	{ID: "end", Name: "End"},
}

var blocks = []Block{
	{"wheat", "Wheat", "crops"},
	{"carrots", "Carrots", "crops"},
	{"potatoes", "Potatoes", "crops"},
	{"beetroots", "Beetroots", "crops"},
	{"melon", "Melon", "crops"},
	{"pumpkin", "Pumpkin", "crops"},
	{"sugar_cane", "Sugar Cane", "crops"},
	{"cactus", "Cactus", "crops"},
	{"cocoa_beans", "Cocoa Beans", "crops"},
	{"sweet_berries", "Sweet Berries", "crops"},
	{"bamboo", "Bamboo", "crops"},
	{"kelp", "Kelp", "crops"},

	{"oak_log", "Oak Log", "wood"},
	{"spruce_log", "Spruce Log", "wood"},
	{"birch_log", "Birch Log", "wood"},
	{"jungle_log", "Jungle Log", "wood"},
	{"acacia_log", "Acacia Log", "wood"},
	{"dark_oak_log", "Dark Oak Log", "wood"},
	{"mangrove_log", "Mangrove Log", "wood"},
	{"cherry_log", "Cherry Log", "wood"},

	{"cobblestone", "Cobblestone", "stone"},
	{"stone", "Stone", "stone"},
	{"deepslate", "Deepslate", "stone"},
	{"cobbled_deepslate", "Cobbled Deepslate", "stone"},
	{"granite", "Granite", "stone"},
	{"diorite", "Diorite", "stone"},
	{"andesite", "Andesite", "stone"},
	{"tuff", "Tuff", "stone"},
	{"sand", "Sand", "stone"},
	{"gravel", "Gravel", "stone"},

	{"coal", "Coal", "ores"},
	{"raw_iron", "Raw Iron", "ores"},
	{"raw_copper", "Raw Copper", "ores"},
	{"raw_gold", "Raw Gold", "ores"},
	{"redstone", "Redstone Dust", "ores"},
	{"lapis_lazuli", "Lapis Lazuli", "ores"},
	{"diamond", "Diamond", "ores"},
	{"emerald", "Emerald", "ores"},
	{"amethyst_shard", "Amethyst Shard", "ores"},

	{"bone", "Bone", "mob_drops"},
	{"string", "String", "mob_drops"},
	{"gunpowder", "Gunpowder", "mob_drops"},
	{"rotten_flesh", "Rotten Flesh", "mob_drops"},
	{"spider_eye", "Spider Eye", "mob_drops"},
	{"slime_ball", "Slimeball", "mob_drops"},
	{"ender_pearl", "Ender Pearl", "mob_drops"},
	{"leather", "Leather", "mob_drops"},
	{"feather", "Feather", "mob_drops"},
	{"ink_sac", "Ink Sac", "mob_drops"},

	{"dirt", "Dirt", "nature"},
	{"clay_ball", "Clay Ball", "nature"},
	{"ice", "Ice", "nature"},
	{"snow_block", "Snow Block", "nature"},
	{"moss_block", "Moss Block", "nature"},
	{"honeycomb", "Honeycomb", "nature"},

	{"netherrack", "Netherrack", "nether"},
	{"quartz", "Nether Quartz", "nether"},
	{"glowstone_dust", "Glowstone Dust", "nether"},
	{"nether_wart", "Nether Wart", "nether"},
	{"blaze_rod", "Blaze Rod", "nether"},
	{"magma_cream", "Magma Cream", "nether"},
	{"soul_sand", "Soul Sand", "nether"},
	{"ancient_debris", "Ancient Debris", "nether"},

	{"end_stone", "End Stone", "end"},
	{"chorus_fruit", "Chorus Fruit", "end"},
	{"shulker_shell", "Shulker Shell", "end"},
	{"obsidian", "Obsidian", "end"},
}

var byID = func() map[string]Block {
	m := make(map[string]Block, len(blocks))
	for _, b := range blocks {
		m[b.ID] = b
	}
	return m
}()

// Categories returns the categories in display order
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Blocks returns every block in display order
func Blocks() []Block {
	out := make([]Block, len(blocks))
	copy(out, blocks)
	return out
}

// ByCategory returns the blocks of one category
func ByCategory(categoryID string) []Block {
	var out []Block
	for _, b := range blocks {
		if b.Category == categoryID {
			out = append(out, b)
		}
	}
	return out
}

// Lookup finds a block by identifier
func Lookup(id string) (Block, bool) {
	b, ok := byID[id]
	return b, ok
}

// Name resolves a block identifier to its display name, falling back to the identifier
func Name(id string) string {
	if b, ok := byID[id]; ok {
		return b.Name
	}
	return id
}
