package wechat

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// qqFaces maps the names the web frontend uses for its built-in faces to
// the closest unicode emoji.
var qqFaces = map[string]rune{
	"笑脸": 0x1f604, "开心": 0x1f60a, "大笑": 0x1f603, "热情": 0x263a,
	"眨眼": 0x1f609, "色": 0x1f60d, "接吻": 0x1f618, "亲吻": 0x1f61a,
	"脸红": 0x1f633, "露齿笑": 0x1f63c, "满意": 0x1f60c, "戏弄": 0x1f61c,
	"吐舌": 0x1f445, "无语": 0x1f612, "得意": 0x1f60f, "汗": 0x1f613,
	"失望": 0x1f640, "合十": 0x1f64f, "低落": 0x1f61e, "呸": 0x1f616,
	"焦虑": 0x1f625, "担心": 0x1f630, "震惊": 0x1f628, "悔恨": 0x1f62b,
	"眼泪": 0x1f622, "哭": 0x1f62d, "破涕为笑": 0x1f602, "晕": 0x1f632,
	"恐惧": 0x1f631, "心烦": 0x1f620, "生气": 0x1f63e, "睡觉": 0x1f62a,
	"生病": 0x1f637, "恶魔": 0x1f47f, "外星人": 0x1f47d, "心": 0x2764,
	"心碎": 0x1f494, "丘比特": 0x1f498, "闪烁": 0x2728, "星星": 0x1f31f,
	"叹号": 0x2755, "问号": 0x2754, "睡着": 0x1f4a4, "水滴": 0x1f4a6,
	"音乐": 0x1f3b5, "火": 0x1f525, "便便": 0x1f4a9, "强": 0x1f44d,
	"弱": 0x1f44e, "拳头": 0x1f44a, "胜利": 0x270c, "上": 0x1f446,
	"下": 0x1f447, "右": 0x1f449, "左": 0x1f448, "第一": 0x261d,
	"强壮": 0x1f4aa, "吻": 0x1f48f, "热恋": 0x1f491, "男孩": 0x1f466,
	"女孩": 0x1f467, "女士": 0x1f469, "男士": 0x1f468, "天使": 0x1f47c,
	"骷髅": 0x1f480, "红唇": 0x1f48b, "太阳": 0x2600, "下雨": 0x2614,
	"多云": 0x2601, "雪人": 0x26c4, "月亮": 0x1f319, "闪电": 0x26a1,
	"海浪": 0x1f30a, "猫": 0x1f431, "小狗": 0x1f429, "老鼠": 0x1f42d,
	"仓鼠": 0x1f439, "兔子": 0x1f430, "狗": 0x1f43a, "青蛙": 0x1f438,
	"老虎": 0x1f42f, "考拉": 0x1f428, "熊": 0x1f43b, "猪": 0x1f437,
	"牛": 0x1f42e, "野猪": 0x1f417, "猴子": 0x1f435, "马": 0x1f434,
	"蛇": 0x1f40d, "鸽子": 0x1f426, "鸡": 0x1f414, "企鹅": 0x1f427,
	"毛虫": 0x1f41b, "章鱼": 0x1f419, "鱼": 0x1f420, "鲸鱼": 0x1f433,
	"海豚": 0x1f42c, "玫瑰": 0x1f339, "花": 0x1f33a, "棕榈树": 0x1f334,
	"仙人掌": 0x1f335, "礼盒": 0x1f49d, "南瓜灯": 0x1f383, "鬼魂": 0x1f47b,
	"圣诞老人": 0x1f385, "圣诞树": 0x1f384, "礼物": 0x1f381, "铃": 0x1f514,
	"庆祝": 0x1f389, "气球": 0x1f388, "CD": 0x1f4bf, "相机": 0x1f4f7,
	"录像机": 0x1f3a5, "电脑": 0x1f4bb, "电视": 0x1f4fa, "电话": 0x1f4de,
	"解锁": 0x1f513, "锁": 0x1f512, "钥匙": 0x1f511, "成交": 0x1f528,
	"灯泡": 0x1f4a1, "邮箱": 0x1f4eb, "浴缸": 0x1f6c0, "钱": 0x1f4b2,
	"炸弹": 0x1f4a3, "手枪": 0x1f52b, "药丸": 0x1f48a, "橄榄球": 0x1f3c8,
	"篮球": 0x1f3c0, "足球": 0x26bd, "棒球": 0x26be, "高尔夫": 0x26f3,
	"奖杯": 0x1f3c6, "入侵者": 0x1f47e, "唱歌": 0x1f3a4, "吉他": 0x1f3b8,
	"比基尼": 0x1f459, "皇冠": 0x1f451, "雨伞": 0x1f302, "手提包": 0x1f45c,
	"口红": 0x1f484, "戒指": 0x1f48d, "钻石": 0x1f48e, "咖啡": 0x2615,
	"啤酒": 0x1f37a, "干杯": 0x1f37b, "鸡尾酒": 0x1f377, "汉堡": 0x1f354,
	"薯条": 0x1f35f, "意面": 0x1f35d, "寿司": 0x1f363, "面条": 0x1f35c,
	"煎蛋": 0x1f373, "冰激凌": 0x1f366, "蛋糕": 0x1f382, "苹果": 0x1f34f,
	"飞机": 0x2708, "火箭": 0x1f680, "自行车": 0x1f6b2, "高铁": 0x1f684,
	"警告": 0x26a0, "旗": 0x1f3c1, "男人": 0x1f6b9, "女人": 0x1f6ba,
	"O": 0x2b55, "X": 0x274e, "版权": 0xa9, "注册商标": 0xae,
	"商标": 0x2122,
}

// emojiSubstitutions remaps code points the frontend renders from its own
// sprite sheet to their standard equivalents.
var emojiSubstitutions = map[string]string{
	"1f63c": "1f601", "1f639": "1f602", "1f63a": "1f603", "1f4ab": "1f616", "1f64d": "1f614",
	"1f63b": "1f60d", "1f63d": "1f618", "1f64e": "1f621", "1f63f": "1f622", "1f4a7": "1f605",
}

var emojiSpan = regexp.MustCompile(`<span class="emoji emoji(.*?)"></span>`)

// NormalizeText decodes the emoji markup found in nicknames, remarks and
// message bodies: sprite spans become unicode code points and escaped face
// names such as "&lt;笑脸&gt;" become their emoji. Unknown names are kept.
func NormalizeText(s string) string {
	s = emojiSpan.ReplaceAllStringFunc(s, func(span string) string {
		code := emojiSpan.FindStringSubmatch(span)[1]
		if sub, ok := emojiSubstitutions[code]; ok {
			code = sub
		}
		if r, ok := codePoints(code); ok {
			return r
		}
		return span
	})
	return replaceFaces(s)
}

// codePoints turns "1f604" or "1f1e8-1f1f3" into the string they encode.
func codePoints(hex string) (string, bool) {
	var b strings.Builder
	for _, part := range strings.Split(hex, "-") {
		v, err := strconv.ParseUint(part, 16, 32)
		if err != nil || v > 0x10ffff {
			return "", false
		}
		b.WriteRune(rune(v))
	}
	return b.String(), b.Len() > 0
}

func replaceFaces(s string) string {
	const open, closing = "&lt;", "&gt;"
	var b strings.Builder
	for {
		i := strings.Index(s, open)
		if i < 0 {
			break
		}
		j := strings.Index(s[i+len(open):], closing)
		if j < 0 {
			break
		}
		end := i + len(open) + j + len(closing)
		name := s[i+len(open) : i+len(open)+j]
		b.WriteString(s[:i])
		if r, ok := qqFaces[name]; ok && !strings.HasPrefix(s[end:], "_web") {
			b.WriteRune(r)
		} else {
			b.WriteString(s[i:end])
		}
		s = s[end:]
	}
	b.WriteString(s)
	return b.String()
}

// decodeContent turns a message body into plain text.
func decodeContent(s string) string {
	s = strings.ReplaceAll(s, "<br/>", "\n")
	return html.UnescapeString(NormalizeText(s))
}

// IsGroup reports whether username names a group chat.
func IsGroup(username string) bool {
	return strings.HasPrefix(username, "@@") || strings.HasSuffix(username, "@chatroom")
}
