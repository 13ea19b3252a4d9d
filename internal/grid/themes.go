package grid

import (
	"math/rand/v2"
)

// Suggestions are the starter themes offered for a fresh grid.
var Suggestions = []string{
	"青いもの", "赤いもの", "黄色いもの", "緑のもの", "白いもの", "黒いもの", "ピンクのもの", "紫のもの",
	"丸いもの", "四角いもの", "三角のもの", "星の形", "ハートの形", "ふわふわ", "ピカピカ", "ざらざら",
	"犬", "猫", "鳥", "魚", "花", "木", "葉っぱ", "雲",
	"空", "海", "川", "山", "夕焼け", "朝ごはん", "昼ごはん", "晩ごはん",
	"おやつ", "飲み物", "コーヒー", "パン", "ラーメン", "お寿司", "果物", "野菜",
	"看板", "標識", "信号", "自転車", "電車", "バス", "車", "飛行機",
	"橋", "階段", "ドア", "窓", "屋根", "ベンチ", "公園", "駅",
	"本", "ペン", "時計", "靴", "帽子", "傘", "鍵", "かばん",
	"笑顔", "手", "影", "足あと", "落とし物", "古いもの", "新しいもの", "小さいもの",
	"大きいもの", "長いもの", "数字の7", "文字のA", "お気に入り", "宝物", "思い出の場所", "おすすめの店",
	"今日の服", "今日の空", "窓からの景色", "光", "水たまり", "石", "砂", "雪",
	"虹", "月", "星", "太陽", "植木鉢", "自動販売機", "ポスト", "ねこの置物",
	"ぬいぐるみ", "おもちゃ", "ゲーム", "音楽", "楽器", "スポーツ", "ボール", "旅の写真",
	"家族", "友だち", "手紙", "カメラ", "メガネ", "マグカップ", "キャンドル", "お祭り",
}

// SampleThemes picks count themes without replacement. Repeats are allowed
// only when count exceeds the suggestion list.
func SampleThemes(rng *rand.Rand, count int) []string {
	if count <= 0 {
		return nil
	}
	out := make([]string, 0, count)
	for _, i := range rng.Perm(len(Suggestions)) {
		if len(out) == count {
			return out
		}
		out = append(out, Suggestions[i])
	}
	for len(out) < count {
		out = append(out, Suggestions[rng.IntN(len(Suggestions))])
	}
	return out
}

// New builds a fresh grid of the given size filled with random starter themes.
func New(size int, rng *rand.Rand) (Document, error) {
	if size < MinSize || size > MaxSize {
		return Document{}, ErrInvalidSize
	}
	themes := SampleThemes(rng, size*size)
	sections := make([]Section, len(themes))
	for i, theme := range themes {
		sections[i] = Section{Title: theme}
	}
	return Document{
		Size:     size,
		Sections: sections,
		BgColor:  DefaultBgColor,
	}, nil
}

// Empty builds a grid of the given size with blank sections.
func Empty(size int) (Document, error) {
	if size < MinSize || size > MaxSize {
		return Document{}, ErrInvalidSize
	}
	return Document{
		Size:     size,
		Sections: make([]Section, size*size),
		BgColor:  DefaultBgColor,
	}, nil
}

// NewRand returns a generator seeded from the runtime's random source.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
